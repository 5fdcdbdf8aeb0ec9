package models

import "time"

// Stage is a state of the interview protocol.
type Stage string

const (
	StageConsent             Stage = "CONSENT"
	StageCollectingProfile   Stage = "COLLECTING_PROFILE"
	StageCollectingTechStack Stage = "COLLECTING_TECH_STACK"
	StageGeneratingQuestions Stage = "GENERATING_QUESTIONS"
	StageAnswering           Stage = "ANSWERING"
	StageComplete            Stage = "COMPLETE"
	StageTerminated          Stage = "TERMINATED"
)

var stageOrder = map[Stage]int{
	StageConsent:             0,
	StageCollectingProfile:   1,
	StageCollectingTechStack: 2,
	StageGeneratingQuestions: 3,
	StageAnswering:           4,
	StageComplete:            5,
	StageTerminated:          6,
}

// IsTerminal reports whether the stage accepts no further input.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageTerminated
}

// CanAdvanceTo reports whether moving from s to next keeps the protocol monotonic.
// TERMINATED is reachable from every non-terminal stage; terminal stages are absorbing.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageTerminated {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	return ok && to > from
}

// Difficulty is the question difficulty bucket.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// DifficultyFor buckets years of experience: under 3 beginner, under 6 intermediate, else advanced.
func DifficultyFor(years float64) Difficulty {
	switch {
	case years < 3:
		return DifficultyBeginner
	case years < 6:
		return DifficultyIntermediate
	default:
		return DifficultyAdvanced
	}
}

// Turn is one message in the conversation window.
type Turn struct {
	Role    string    `json:"role"` // "candidate" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
