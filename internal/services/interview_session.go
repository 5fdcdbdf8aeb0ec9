package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"talentscout/internal/models"
)

// SessionConfig holds interview protocol limits.
type SessionConfig struct {
	QuestionCount      int
	MaxRedirects       int
	ContextWindowTurns int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.QuestionCount < 3 || c.QuestionCount > 5 {
		c.QuestionCount = 4
	}
	if c.MaxRedirects < 0 {
		c.MaxRedirects = 2
	}
	if c.ContextWindowTurns <= 0 {
		c.ContextWindowTurns = 5
	}
	return c
}

// RecordSaver persists a completed interview.
type RecordSaver interface {
	CreateOrUpdate(ctx context.Context, profile *models.CandidateProfile) (bool, error)
}

// QuestionProvider supplies interview questions and never fails.
type QuestionProvider interface {
	Questions(ctx context.Context, techStack []string, difficulty models.Difficulty, count int) ([]string, bool)
}

// Reply is what the candidate sees after each turn.
type Reply struct {
	Prompt        string       `json:"prompt"`
	Stage         models.Stage `json:"stage"`
	SessionEnded  bool         `json:"session_ended"`
	CandidateID   string       `json:"candidate_id,omitempty"`
	QuestionIndex int          `json:"question_index,omitempty"` // 1-based while answering
	QuestionTotal int          `json:"question_total,omitempty"`
}

type profileField int

const (
	fieldName profileField = iota
	fieldEmail
	fieldPhone
	fieldExperience
	fieldPosition
	fieldLocation
)

var profileFieldLabels = map[profileField]string{
	fieldName:       "name",
	fieldEmail:      "email",
	fieldPhone:      "phone number",
	fieldExperience: "years of experience",
	fieldPosition:   "desired position",
	fieldLocation:   "location",
}

var profilePrompts = map[profileField]string{
	fieldName:       "Let's start with the basics. What is your full name?",
	fieldEmail:      "Thanks, %s! What is your email address?",
	fieldPhone:      "What is the best phone number to reach you?",
	fieldExperience: "How many years of professional experience do you have?",
	fieldPosition:   "Which position are you applying for?",
	fieldLocation:   "Where are you currently located?",
}

const consentPrompt = `Hello! I'm the TalentScout hiring assistant. I'll ask a few questions about your background and then some technical questions.

Before we begin: your name, email and phone number are stored encrypted, your data is kept for a limited retention period, and you can view, export or delete it at any time with your candidate ID.

Do you agree to the processing of your data for this application? Reply "yes" to continue.`

const consentReminder = `I can only continue once you agree to the processing of your data. Reply "yes" to continue, or close this window to leave.`

const techStackPrompt = `Please list your tech stack: the programming languages, frameworks, databases and tools you are comfortable with, separated by commas.`

// InterviewSession drives one candidate through the interview protocol.
// Turns are serialized by the session mutex; Abandon never blocks on it.
type InterviewSession struct {
	mu sync.Mutex

	candidateID   string
	stage         models.Stage
	step          profileField
	buffer        models.CandidateProfile
	turns         []models.Turn
	questionIndex int
	redirects     int
	persisted     bool
	abandoned     atomic.Bool

	cfg       SessionConfig
	questions QuestionProvider
	records   RecordSaver
	now       func() time.Time
	metrics   *Metrics
}

// NewInterviewSession creates a session in CONSENT.
func NewInterviewSession(candidateID string, cfg SessionConfig, questions QuestionProvider, records RecordSaver) *InterviewSession {
	return &InterviewSession{
		candidateID: candidateID,
		stage:       models.StageConsent,
		buffer:      models.CandidateProfile{CandidateID: candidateID},
		cfg:         cfg.withDefaults(),
		questions:   questions,
		records:     records,
		now:         time.Now,
		metrics:     GetMetrics(),
	}
}

// CandidateID returns the id assigned at start.
func (s *InterviewSession) CandidateID() string {
	return s.candidateID
}

// Stage returns the current stage.
func (s *InterviewSession) Stage() models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Context returns a copy of the recent conversation window.
func (s *InterviewSession) Context() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.turns...)
}

// Greeting returns the opening consent prompt.
func (s *InterviewSession) Greeting() *Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.say(consentPrompt)
}

// Abandon terminates the session without persisting anything. A question
// generation still in flight finishes, but its result is discarded.
func (s *InterviewSession) Abandon() {
	if s.abandoned.CompareAndSwap(false, true) {
		log.Printf("👋 [INTERVIEW] Session %s abandoned", s.candidateID)
	}
}

// Submit processes one candidate input. Validation problems become re-prompts,
// never errors. A terminal session returns an ended reply and ErrSessionEnded.
// When saving the completed interview fails, the error is returned with a reply
// and the next Submit retries the save.
func (s *InterviewSession) Submit(ctx context.Context, input string) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abandoned.Load() && !s.stage.IsTerminal() {
		s.advance(models.StageTerminated)
	}

	switch {
	case s.stage == models.StageComplete && !s.persisted:
		return s.persist(ctx)
	case s.stage == models.StageComplete:
		return s.ended(fmt.Sprintf("This interview is complete. Your candidate ID is %s.", s.candidateID)), ErrSessionEnded
	case s.stage == models.StageTerminated:
		return s.ended("This interview has ended. Start a new session to try again."), ErrSessionEnded
	}

	s.remember("candidate", input)

	if s.stage == models.StageConsent {
		return s.handleConsent(input), nil
	}

	if isExitPhrase(input) {
		s.advance(models.StageTerminated)
		return s.ended("Thanks for your time! Nothing has been stored. Goodbye."), nil
	}
	if s.stage == models.StageAnswering {
		return s.handleAnswer(ctx, input)
	}
	if isRecapRequest(input) {
		return s.say(s.recap(input)), nil
	}
	if update, ok := parseUpdateIntent(input); ok {
		return s.say(s.applyUpdate(update)), nil
	}

	switch s.stage {
	case models.StageCollectingProfile:
		return s.handleProfile(input), nil
	case models.StageCollectingTechStack:
		return s.handleTechStack(ctx, input)
	default:
		return nil, fmt.Errorf("unexpected interview stage %s", s.stage)
	}
}

func (s *InterviewSession) handleConsent(input string) *Reply {
	if !isAffirmative(input) {
		return s.say(consentReminder)
	}

	ts := s.now().UTC()
	s.buffer.ConsentGiven = true
	s.buffer.ConsentTimestamp = &ts
	s.advance(models.StageCollectingProfile)
	s.step = fieldName
	return s.say("Thank you! " + profilePrompts[fieldName])
}

func (s *InterviewSession) handleProfile(input string) *Reply {
	if err := s.setField(s.step, input); err != nil {
		return s.say(validationMessage(err) + " " + s.promptFor(s.step))
	}

	if s.step == fieldLocation {
		s.advance(models.StageCollectingTechStack)
		return s.say(techStackPrompt)
	}
	s.step++
	return s.say(s.promptFor(s.step))
}

// setField validates and stores one profile field.
func (s *InterviewSession) setField(field profileField, input string) error {
	switch field {
	case fieldName:
		v, err := ValidateName(input)
		if err != nil {
			return err
		}
		s.buffer.FullName = v
	case fieldEmail:
		v, err := ValidateEmail(input)
		if err != nil {
			return err
		}
		s.buffer.Email = v
	case fieldPhone:
		v, err := ValidatePhone(input)
		if err != nil {
			return err
		}
		s.buffer.Phone = v
	case fieldExperience:
		v, err := ParseYearsExperience(input)
		if err != nil {
			return err
		}
		s.buffer.YearsExperience = &v
	case fieldPosition:
		v, err := ValidateShortText("desired_position", input)
		if err != nil {
			return err
		}
		s.buffer.DesiredPosition = v
	case fieldLocation:
		v, err := ValidateShortText("current_location", input)
		if err != nil {
			return err
		}
		s.buffer.CurrentLocation = v
	}
	return nil
}

func (s *InterviewSession) promptFor(field profileField) string {
	if field == fieldEmail {
		return fmt.Sprintf(profilePrompts[fieldEmail], firstName(s.buffer.FullName))
	}
	return profilePrompts[field]
}

func (s *InterviewSession) handleTechStack(ctx context.Context, input string) (*Reply, error) {
	stack, err := ParseTechStack(input)
	if err != nil {
		return s.say(validationMessage(err) + " " + techStackPrompt), nil
	}
	s.buffer.TechStack = stack
	s.advance(models.StageGeneratingQuestions)

	difficulty := models.DifficultyFor(*s.buffer.YearsExperience)
	questions, fallback := s.questions.Questions(ctx, stack, difficulty, s.cfg.QuestionCount)

	if s.abandoned.Load() {
		s.advance(models.StageTerminated)
		return s.ended("This interview has ended. Start a new session to try again."), ErrSessionEnded
	}
	if fallback {
		log.Printf("⚠️ [INTERVIEW] Session %s uses fallback questions", s.candidateID)
	}

	s.buffer.Difficulty = difficulty
	s.buffer.TechnicalQuestions = questions
	s.buffer.Answers = []models.Answer{}
	s.questionIndex = 0
	s.redirects = 0
	s.advance(models.StageAnswering)

	intro := fmt.Sprintf("Great, thanks! I have %d technical questions for you, one at a time.\n\n", len(questions))
	return s.say(intro + s.currentQuestion()), nil
}

func (s *InterviewSession) handleAnswer(ctx context.Context, input string) (*Reply, error) {
	if s.redirects < s.cfg.MaxRedirects {
		if prompt, ok := s.aside(input); ok {
			s.redirects++
			s.metrics.Redirects.Inc()
			return s.say(prompt), nil
		}
	}

	s.buffer.Answers = append(s.buffer.Answers, models.Answer{
		Question: s.buffer.TechnicalQuestions[s.questionIndex],
		Answer:   strings.TrimSpace(input),
	})
	s.questionIndex++
	s.redirects = 0

	if s.questionIndex < len(s.buffer.TechnicalQuestions) {
		return s.say("Thank you.\n\n" + s.currentQuestion()), nil
	}

	s.advance(models.StageComplete)
	return s.persist(ctx)
}

// aside answers input that is not an answer to the current question. Every
// aside spends one redirect, so a repeated one is eventually recorded as given.
// The profile is fixed once questions are generated.
func (s *InterviewSession) aside(input string) (string, bool) {
	switch {
	case isRecapRequest(input):
		return s.recap(input), true
	case updateIntent.MatchString(input):
		return "Your details can't be changed once the technical questions have started. Please answer the question:\n\n" + s.currentQuestion(), true
	case needsRedirect(input):
		return "Let's stay focused on the interview. Please answer the question:\n\n" + s.currentQuestion(), true
	}
	return "", false
}

func (s *InterviewSession) currentQuestion() string {
	return fmt.Sprintf("Question %d of %d: %s", s.questionIndex+1, len(s.buffer.TechnicalQuestions), s.buffer.TechnicalQuestions[s.questionIndex])
}

func (s *InterviewSession) persist(ctx context.Context) (*Reply, error) {
	profile := s.snapshot()
	if _, err := s.records.CreateOrUpdate(ctx, profile); err != nil {
		log.Printf("❌ [INTERVIEW] Failed to save interview %s: %v", s.candidateID, err)
		reply := s.say("Your interview is complete, but we could not save it just now. Send any message to try again.")
		return reply, fmt.Errorf("failed to save interview: %w", err)
	}

	s.persisted = true
	log.Printf("✅ [INTERVIEW] Session %s complete", s.candidateID)
	reply := s.ended(fmt.Sprintf(
		"Thank you, %s! Your interview is complete and your information has been saved securely.\n\nYour candidate ID is %s. Keep it to view, export or delete your data. Our recruiters will be in touch.",
		firstName(s.buffer.FullName), s.candidateID))
	reply.CandidateID = s.candidateID
	return reply, nil
}

// snapshot copies the buffer so the store never aliases session state.
func (s *InterviewSession) snapshot() *models.CandidateProfile {
	p := s.buffer
	p.TechStack = append([]string(nil), s.buffer.TechStack...)
	p.TechnicalQuestions = append([]string(nil), s.buffer.TechnicalQuestions...)
	p.Answers = append([]models.Answer(nil), s.buffer.Answers...)
	if s.buffer.YearsExperience != nil {
		years := *s.buffer.YearsExperience
		p.YearsExperience = &years
	}
	return &p
}

// recap answers "what's my email" style questions from the buffer.
func (s *InterviewSession) recap(input string) string {
	q := normalizeIntent(input)
	if strings.Contains(q, "what did you ask") {
		if s.stage == models.StageAnswering {
			return "Here is the current question again:\n\n" + s.currentQuestion()
		}
		return "My last question was: " + s.lastAssistantTurn()
	}

	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	experience := ""
	if s.buffer.YearsExperience != nil {
		experience = strconv.FormatFloat(*s.buffer.YearsExperience, 'f', -1, 64)
	}

	switch {
	case strings.Contains(q, "email"):
		add("Email", s.buffer.Email)
	case strings.Contains(q, "phone") || strings.Contains(q, "number"):
		add("Phone", s.buffer.Phone)
	case strings.Contains(q, "name"):
		add("Name", s.buffer.FullName)
	case strings.Contains(q, "position") || strings.Contains(q, "role"):
		add("Desired position", s.buffer.DesiredPosition)
	case strings.Contains(q, "location") || strings.Contains(q, "where"):
		add("Location", s.buffer.CurrentLocation)
	case strings.Contains(q, "experience") || strings.Contains(q, "years"):
		add("Years of experience", experience)
	case strings.Contains(q, "tech") || strings.Contains(q, "stack"):
		add("Tech stack", strings.Join(s.buffer.TechStack, ", "))
	default:
		add("Name", s.buffer.FullName)
		add("Email", s.buffer.Email)
		add("Phone", s.buffer.Phone)
		add("Years of experience", experience)
		add("Desired position", s.buffer.DesiredPosition)
		add("Location", s.buffer.CurrentLocation)
		add("Tech stack", strings.Join(s.buffer.TechStack, ", "))
	}

	if len(lines) == 0 {
		return "I don't have that information yet. We haven't covered it.\n\n" + s.resumePrompt()
	}
	summary := "Here is what you told me:\n" + strings.Join(lines, "\n") + "\n\n"
	if s.stage != models.StageAnswering {
		summary += "You can say \"change my <field> to <value>\" to correct anything.\n\n"
	}
	return summary + s.resumePrompt()
}

// applyUpdate changes an already collected field.
func (s *InterviewSession) applyUpdate(u profileUpdate) string {
	label := profileFieldLabels[u.field]
	if !s.collected(u.field) {
		return fmt.Sprintf("We haven't collected your %s yet. %s", label, s.resumePrompt())
	}
	if err := s.setField(u.field, u.value); err != nil {
		return fmt.Sprintf("I couldn't update your %s. %s\n\n%s", label, validationMessage(err), s.resumePrompt())
	}
	log.Printf("✏️  [INTERVIEW] Session %s updated %s", s.candidateID, label)
	return fmt.Sprintf("I've updated your %s.\n\n%s", label, s.resumePrompt())
}

func (s *InterviewSession) collected(field profileField) bool {
	if s.stage != models.StageCollectingProfile {
		return true
	}
	return field < s.step
}

// resumePrompt repeats whatever the session is waiting for.
func (s *InterviewSession) resumePrompt() string {
	switch s.stage {
	case models.StageCollectingProfile:
		return s.promptFor(s.step)
	case models.StageCollectingTechStack:
		return techStackPrompt
	case models.StageAnswering:
		return s.currentQuestion()
	default:
		return ""
	}
}

func (s *InterviewSession) lastAssistantTurn() string {
	// The newest turn is the candidate's own input.
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == "assistant" {
			return s.turns[i].Content
		}
	}
	return s.resumePrompt()
}

func (s *InterviewSession) advance(next models.Stage) {
	if !s.stage.CanAdvanceTo(next) {
		return
	}
	s.stage = next
	s.metrics.StageTransitions.WithLabelValues(string(next)).Inc()
}

func (s *InterviewSession) remember(role, content string) {
	s.turns = append(s.turns, models.Turn{Role: role, Content: content, At: s.now().UTC()})
	if over := len(s.turns) - s.cfg.ContextWindowTurns; over > 0 {
		s.turns = append([]models.Turn(nil), s.turns[over:]...)
	}
}

func (s *InterviewSession) say(prompt string) *Reply {
	s.remember("assistant", prompt)
	reply := &Reply{Prompt: prompt, Stage: s.stage}
	if s.stage == models.StageAnswering {
		reply.QuestionIndex = s.questionIndex + 1
		reply.QuestionTotal = len(s.buffer.TechnicalQuestions)
	}
	return reply
}

func (s *InterviewSession) ended(prompt string) *Reply {
	reply := s.say(prompt)
	reply.SessionEnded = true
	return reply
}

func validationMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		msg := verr.Message
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	}
	return "That doesn't look right."
}

func firstName(fullName string) string {
	if fields := strings.Fields(fullName); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}
