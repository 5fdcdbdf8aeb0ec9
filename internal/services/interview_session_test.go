package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscout/internal/database"
	"talentscout/internal/models"
)

// recordingQuestions captures the generator request and returns fixed questions.
type recordingQuestions struct {
	mu         sync.Mutex
	techStack  []string
	difficulty models.Difficulty
	count      int
	block      chan struct{}
}

func (q *recordingQuestions) Questions(_ context.Context, techStack []string, difficulty models.Difficulty, count int) ([]string, bool) {
	if q.block != nil {
		<-q.block
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.techStack = techStack
	q.difficulty = difficulty
	q.count = count

	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("How would you approach problem %d in %s?", i+1, strings.Join(techStack, " and "))
	}
	return out, false
}

// flakySaver fails the first failures saves.
type flakySaver struct {
	mu       sync.Mutex
	failures int
	saved    []*models.CandidateProfile
}

func (s *flakySaver) CreateOrUpdate(_ context.Context, p *models.CandidateProfile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return false, errors.New("store unavailable")
	}
	s.saved = append(s.saved, p)
	return true, nil
}

func submitAll(t *testing.T, s *InterviewSession, inputs ...string) *Reply {
	t.Helper()
	var reply *Reply
	for _, in := range inputs {
		var err error
		reply, err = s.Submit(context.Background(), in)
		require.NoError(t, err, in)
	}
	return reply
}

var alexProfileInputs = []string{"yes", "Alex Doe", "alex@example.com", "+1-555-0100", "4", "Backend Engineer", "Berlin"}

func TestInterviewSessionAlexDoeScenario(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	questions := &recordingQuestions{}
	s := NewInterviewSession("candidate_alex", SessionConfig{QuestionCount: 4}, questions, f.store)

	greeting := s.Greeting()
	assert.Equal(t, models.StageConsent, greeting.Stage)

	reply := submitAll(t, s, alexProfileInputs...)
	assert.Equal(t, models.StageCollectingTechStack, reply.Stage)

	reply = submitAll(t, s, "Go, Python")
	assert.Equal(t, models.StageAnswering, reply.Stage)
	assert.Equal(t, 1, reply.QuestionIndex)
	assert.Equal(t, 4, reply.QuestionTotal)
	assert.Equal(t, []string{"Go", "Python"}, questions.techStack)
	assert.Equal(t, models.DifficultyIntermediate, questions.difficulty)
	assert.Equal(t, 4, questions.count)

	for i := 1; i <= 3; i++ {
		reply = submitAll(t, s, fmt.Sprintf("My answer number %d uses channels.", i))
		assert.Equal(t, models.StageAnswering, reply.Stage)
		assert.Equal(t, i+1, reply.QuestionIndex)
	}
	reply = submitAll(t, s, "Final answer with a benchmark.")
	assert.Equal(t, models.StageComplete, reply.Stage)
	assert.True(t, reply.SessionEnded)
	assert.Equal(t, "candidate_alex", reply.CandidateID)
	assert.Contains(t, reply.Prompt, "candidate_alex")

	doc, err := f.backend.FindByID(ctx, "candidate_alex")
	require.NoError(t, err)
	assert.NotEqual(t, "alex@example.com", doc.EncryptedEmail)
	assert.True(t, doc.ConsentGiven)
	assert.Equal(t, "intermediate", doc.Difficulty)
	assert.Len(t, doc.Answers, 4)
	assert.Equal(t, doc.TechnicalQuestions[3], doc.Answers[3].Question)

	rec, err := f.store.GetDecrypted(ctx, "candidate_alex")
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", rec.Email)
	assert.Equal(t, 4.0, rec.YearsExperience)

	// Input after completion is refused.
	reply, err = s.Submit(ctx, "one more thing")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.True(t, reply.SessionEnded)
	assert.Equal(t, models.StageComplete, s.Stage())
}

func TestInterviewSessionConsentIsSticky(t *testing.T) {
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_c", SessionConfig{}, &recordingQuestions{}, saver)

	for _, in := range []string{"", "no", "Alex Doe", "bye", "quit", "maybe later", "what is this?"} {
		reply, err := s.Submit(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, models.StageConsent, reply.Stage, in)
		assert.False(t, reply.SessionEnded, in)
	}

	for _, in := range []string{"Yes", "OK!", "i agree.", "  Sure "} {
		s := NewInterviewSession("candidate_c", SessionConfig{}, &recordingQuestions{}, saver)
		reply, err := s.Submit(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, models.StageCollectingProfile, reply.Stage, in)
	}
}

func TestInterviewSessionConsentNeverResets(t *testing.T) {
	s := NewInterviewSession("candidate_c", SessionConfig{}, &recordingQuestions{}, &flakySaver{})
	submitAll(t, s, "yes", "no", "I do not consent", "Alex Doe")

	assert.True(t, s.buffer.ConsentGiven)
	require.NotNil(t, s.buffer.ConsentTimestamp)
	assert.Equal(t, models.StageCollectingProfile, s.Stage())
}

func TestInterviewSessionRepromptsInvalidFields(t *testing.T) {
	s := NewInterviewSession("candidate_v", SessionConfig{}, &recordingQuestions{}, &flakySaver{})
	submitAll(t, s, "yes", "Alex Doe")

	reply := submitAll(t, s, "not-an-email")
	assert.Equal(t, models.StageCollectingProfile, reply.Stage)
	assert.Contains(t, reply.Prompt, "valid email")

	reply = submitAll(t, s, "alex@example.com", "12")
	assert.Contains(t, reply.Prompt, "7 to 15 digits")

	reply = submitAll(t, s, "+1-555-0100", "seventy")
	assert.Contains(t, reply.Prompt, "number")

	reply = submitAll(t, s, "75")
	assert.Contains(t, reply.Prompt, "between 0 and 60")

	reply = submitAll(t, s, "2", "Backend Engineer", "Berlin", " , ;")
	assert.Equal(t, models.StageCollectingTechStack, reply.Stage)

	reply = submitAll(t, s, "Go")
	assert.Equal(t, models.StageAnswering, reply.Stage)
	assert.Equal(t, "alex@example.com", s.buffer.Email)
}

func TestInterviewSessionBucketsExperience(t *testing.T) {
	tests := []struct {
		years string
		want  models.Difficulty
	}{
		{"0", models.DifficultyBeginner},
		{"2", models.DifficultyBeginner},
		{"3", models.DifficultyIntermediate},
		{"5", models.DifficultyIntermediate},
		{"6", models.DifficultyAdvanced},
		{"50", models.DifficultyAdvanced},
	}
	for _, tt := range tests {
		questions := &recordingQuestions{}
		s := NewInterviewSession("candidate_b", SessionConfig{QuestionCount: 3}, questions, &flakySaver{})
		submitAll(t, s, "yes", "Alex Doe", "alex@example.com", "+1-555-0100", tt.years, "Engineer", "Berlin", "Go")
		assert.Equal(t, tt.want, questions.difficulty, tt.years)
		assert.Equal(t, 3, questions.count)
	}
}

func TestInterviewSessionRedirectsAreBounded(t *testing.T) {
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_r", SessionConfig{QuestionCount: 3, MaxRedirects: 2}, &recordingQuestions{}, saver)
	submitAll(t, s, append(alexProfileInputs, "Go")...)

	reply := submitAll(t, s, "what is the answer?")
	assert.Equal(t, 1, reply.QuestionIndex)
	assert.Contains(t, reply.Prompt, "stay focused")

	reply = submitAll(t, s, "   ")
	assert.Equal(t, 1, reply.QuestionIndex)

	// Third off-topic input is accepted as given.
	reply = submitAll(t, s, "tell me a joke")
	assert.Equal(t, 2, reply.QuestionIndex)

	// Counter resets per question.
	reply = submitAll(t, s, "can you explain it first")
	assert.Equal(t, 2, reply.QuestionIndex)

	reply = submitAll(t, s, "I would use a worker pool.", "Channels and select.")
	assert.Equal(t, models.StageComplete, reply.Stage)

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "tell me a joke", saver.saved[0].Answers[0].Answer)
}

func TestInterviewSessionExitTerminatesWithoutPersisting(t *testing.T) {
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_x", SessionConfig{}, &recordingQuestions{}, saver)
	submitAll(t, s, "yes", "Alex Doe")

	reply := submitAll(t, s, "Goodbye!")
	assert.Equal(t, models.StageTerminated, reply.Stage)
	assert.True(t, reply.SessionEnded)
	assert.Empty(t, saver.saved)

	reply, err := s.Submit(context.Background(), "alex@example.com")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, models.StageTerminated, reply.Stage)
}

func TestInterviewSessionExitNeedsWholePhrase(t *testing.T) {
	s := NewInterviewSession("candidate_x", SessionConfig{QuestionCount: 3}, &recordingQuestions{}, &flakySaver{})
	submitAll(t, s, append(alexProfileInputs, "Go")...)

	reply := submitAll(t, s, "I would stop the goroutine by closing the done channel.")
	assert.Equal(t, models.StageAnswering, reply.Stage)
	assert.Equal(t, 2, reply.QuestionIndex)
}

func TestInterviewSessionPersistenceFailureRetries(t *testing.T) {
	saver := &flakySaver{failures: 1}
	s := NewInterviewSession("candidate_p", SessionConfig{QuestionCount: 3}, &recordingQuestions{}, saver)
	submitAll(t, s, append(alexProfileInputs, "Go", "a1", "a2")...)

	reply, err := s.Submit(context.Background(), "a3")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, models.StageComplete, reply.Stage)
	assert.False(t, reply.SessionEnded)
	assert.Empty(t, saver.saved)

	reply, err = s.Submit(context.Background(), "retry")
	require.NoError(t, err)
	assert.True(t, reply.SessionEnded)
	assert.Equal(t, "candidate_p", reply.CandidateID)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "a3", saver.saved[0].Answers[2].Answer)
}

func TestInterviewSessionAbandonDiscardsLateQuestions(t *testing.T) {
	questions := &recordingQuestions{block: make(chan struct{})}
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_l", SessionConfig{}, questions, saver)
	submitAll(t, s, alexProfileInputs...)

	done := make(chan *Reply)
	go func() {
		reply, _ := s.Submit(context.Background(), "Go")
		done <- reply
	}()

	// Abandon while generation is in flight, then let it finish.
	time.Sleep(20 * time.Millisecond)
	s.Abandon()
	close(questions.block)

	reply := <-done
	assert.True(t, reply.SessionEnded)
	assert.Equal(t, models.StageTerminated, reply.Stage)
	assert.Equal(t, models.StageTerminated, s.Stage())
	assert.Empty(t, s.buffer.TechnicalQuestions)
	assert.Empty(t, saver.saved)
}

func TestInterviewSessionRecapAndUpdate(t *testing.T) {
	s := NewInterviewSession("candidate_u", SessionConfig{QuestionCount: 3}, &recordingQuestions{}, &flakySaver{})
	submitAll(t, s, "yes", "Alex Doe", "alex@example.com")

	reply := submitAll(t, s, "what's my email")
	assert.Contains(t, reply.Prompt, "alex@example.com")
	assert.Contains(t, reply.Prompt, "phone number")
	assert.Equal(t, models.StageCollectingProfile, reply.Stage)

	reply = submitAll(t, s, "change my email to alex.doe@example.org")
	assert.Contains(t, reply.Prompt, "updated your email")
	assert.Equal(t, "alex.doe@example.org", s.buffer.Email)

	reply = submitAll(t, s, "change my phone to 12345678")
	assert.Contains(t, reply.Prompt, "haven't collected")
	assert.Empty(t, s.buffer.Phone)

	reply = submitAll(t, s, "update my email to nope")
	assert.Contains(t, reply.Prompt, "couldn't update")
	assert.Equal(t, "alex.doe@example.org", s.buffer.Email)

	// The pending prompt is unchanged: the next input is the phone number.
	reply = submitAll(t, s, "+1-555-0100")
	assert.Contains(t, reply.Prompt, "years")
	assert.Equal(t, "+1-555-0100", s.buffer.Phone)
}

func TestInterviewSessionRecapWhileAnsweringIsBounded(t *testing.T) {
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_m", SessionConfig{QuestionCount: 3, MaxRedirects: 2}, &recordingQuestions{}, saver)
	submitAll(t, s, append(alexProfileInputs, "Go")...)

	answer := "I would guard the map with a mutex; remind me to also mention channels"
	for i := 0; i < 2; i++ {
		reply := submitAll(t, s, answer)
		assert.Equal(t, 1, reply.QuestionIndex, "attempt %d", i+1)
		assert.Contains(t, reply.Prompt, "Question 1 of 3")
		assert.NotContains(t, reply.Prompt, "change my")
	}

	reply := submitAll(t, s, answer)
	assert.Equal(t, 2, reply.QuestionIndex)
	require.Len(t, s.buffer.Answers, 1)
	assert.Equal(t, answer, s.buffer.Answers[0].Answer)
}

func TestInterviewSessionProfileIsFixedWhileAnswering(t *testing.T) {
	saver := &flakySaver{}
	s := NewInterviewSession("candidate_f", SessionConfig{QuestionCount: 3, MaxRedirects: 2}, &recordingQuestions{}, saver)
	submitAll(t, s, append(alexProfileInputs, "Go")...)

	reply := submitAll(t, s, "change my experience to 10")
	assert.Equal(t, 1, reply.QuestionIndex)
	assert.Contains(t, reply.Prompt, "can't be changed")
	assert.Equal(t, 4.0, *s.buffer.YearsExperience)

	answer := "Set my position to be the owner of the cache layer and use sync.Map"
	reply = submitAll(t, s, answer)
	assert.Equal(t, 1, reply.QuestionIndex)

	// The redirect budget is spent, so the input is recorded as the answer.
	submitAll(t, s, answer, "a2", "a3")
	require.Len(t, saver.saved, 1)
	saved := saver.saved[0]
	assert.Equal(t, "Backend Engineer", saved.DesiredPosition)
	assert.Equal(t, 4.0, *saved.YearsExperience)
	assert.Equal(t, models.DifficultyIntermediate, saved.Difficulty)
	assert.Equal(t, answer, saved.Answers[0].Answer)
}

func TestInterviewSessionContextWindow(t *testing.T) {
	s := NewInterviewSession("candidate_w", SessionConfig{ContextWindowTurns: 3}, &recordingQuestions{}, &flakySaver{})
	submitAll(t, s, "yes", "Alex Doe", "alex@example.com")

	turns := s.Context()
	require.Len(t, turns, 3)
	assert.Equal(t, "assistant", turns[0].Role)
	assert.Equal(t, "candidate", turns[1].Role)
	assert.Equal(t, "alex@example.com", turns[1].Content)
	assert.Equal(t, "assistant", turns[2].Role)
}

func TestInterviewSessionWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	f := newRecordStoreFixture(t, RecordStoreConfig{})
	sqlite, err := database.NewSQLite("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(ctx) })
	require.NoError(t, sqlite.Initialize(ctx))

	store := NewRecordStore(sqlite, NewAuditService(sqlite), f.cipher, f.hasher, nil, RecordStoreConfig{})
	s := NewInterviewSession("candidate_sql", SessionConfig{QuestionCount: 3}, &recordingQuestions{}, store)
	reply := submitAll(t, s, append(alexProfileInputs, "Go, Python", "a1", "a2", "a3")...)
	assert.Equal(t, models.StageComplete, reply.Stage)

	rec, err := store.GetDecrypted(ctx, "candidate_sql")
	require.NoError(t, err)
	assert.Equal(t, "Alex Doe", rec.FullName)
	assert.Equal(t, []string{"Go", "Python"}, rec.TechStack)

	trail, err := store.AuditTrail(ctx, "candidate_sql")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.AuditActionCreate, trail[0].Action)
	assert.Equal(t, models.AuditActionView, trail[1].Action)
}
