package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"talentscout/internal/models"
)

// QuestionGenerator turns (tech stack, difficulty, count) into question text.
// Failures wrap ErrGeneratorUnavailable.
type QuestionGenerator interface {
	Generate(ctx context.Context, techStack []string, difficulty models.Difficulty, count int) ([]string, error)
}

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	RatePerMinute int
}

// LLMQuestionGenerator asks a chat completions endpoint for technical questions.
type LLMQuestionGenerator struct {
	cfg     LLMConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewLLMQuestionGenerator creates a generator. The limiter caps outbound calls
// across all sessions of this process.
func NewLLMQuestionGenerator(cfg LLMConfig) *LLMQuestionGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &LLMQuestionGenerator{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute),
	}
}

const questionSystemPrompt = `You are a senior technical interviewer at TalentScout, a technology recruitment agency.
You write screening questions only. Never include answers, hints or explanations.`

func questionUserPrompt(techStack []string, difficulty models.Difficulty, count int) string {
	var focus string
	switch difficulty {
	case models.DifficultyBeginner:
		focus = "fundamental concepts, syntax and basic problem solving"
	case models.DifficultyIntermediate:
		focus = "intermediate concepts, design patterns and everyday best practices"
	default:
		focus = "architecture, performance, trade-offs and technical leadership"
	}

	return fmt.Sprintf(`Candidate tech stack: %s
Candidate level: %s (%s)

Write exactly %d technical questions for this candidate.
- Spread the questions across the listed technologies.
- Number each question (1., 2., 3., ...) on its own line.
- Every question must end with a question mark.
- Test understanding and practical experience, not memorization.
- Do not repeat similar questions.`, strings.Join(techStack, ", "), difficulty, focus, count)
}

// Generate requests count questions. The response is parsed with ParseQuestions;
// an empty result is treated as a failure.
func (g *LLMQuestionGenerator) Generate(ctx context.Context, techStack []string, difficulty models.Difficulty, count int) ([]string, error) {
	if g.cfg.APIKey == "" || g.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: no LLM endpoint configured", ErrGeneratorUnavailable)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrGeneratorUnavailable, err)
	}

	requestBody := map[string]interface{}{
		"model": g.cfg.Model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": questionSystemPrompt},
			{"role": "user", "content": questionUserPrompt(techStack, difficulty, count)},
		},
		"stream":      false,
		"temperature": 0.7,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", ErrGeneratorUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrGeneratorUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGeneratorUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [QUESTIONS] API error (status %d)", resp.StatusCode)
		return nil, fmt.Errorf("%w: API error (status %d)", ErrGeneratorUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("%w: failed to parse API response: %v", ErrGeneratorUnavailable, err)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrGeneratorUnavailable)
	}

	questions := ParseQuestions(apiResponse.Choices[0].Message.Content, count)
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: response contained no usable questions", ErrGeneratorUnavailable)
	}
	return questions, nil
}

var listMarker = regexp.MustCompile(`^(?:\d+\s*[.)]\s*|[-*•]\s*)+`)

// minQuestionLength drops fragments like "Any questions?".
const minQuestionLength = 20

// ParseQuestions extracts up to max questions from generated text: list markers
// and emphasis are stripped, only lines ending in "?" and longer than 20
// characters are kept, and duplicates are dropped.
func ParseQuestions(text string, max int) []string {
	var questions []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.NewReplacer("**", "", "__", "").Replace(line)
		line = strings.TrimSpace(line)

		if !strings.HasSuffix(line, "?") || len(line) <= minQuestionLength {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		questions = append(questions, line)
		if len(questions) == max {
			break
		}
	}
	return questions
}

// QuestionSource obtains interview questions: up to two generator attempts,
// then the fallback bank fills whatever is missing.
type QuestionSource struct {
	generator QuestionGenerator
	bank      *QuestionBank
	attempts  int
	metrics   *Metrics
}

// NewQuestionSource creates a question source. generator may be nil.
func NewQuestionSource(generator QuestionGenerator, bank *QuestionBank) *QuestionSource {
	return &QuestionSource{
		generator: generator,
		bank:      bank,
		attempts:  2,
		metrics:   GetMetrics(),
	}
}

// Questions never fails: it degrades to fallback questions. fallback reports
// whether any bank question was used.
func (q *QuestionSource) Questions(ctx context.Context, techStack []string, difficulty models.Difficulty, count int) (questions []string, fallback bool) {
	start := time.Now()
	defer func() { q.metrics.GeneratorLatency.Observe(time.Since(start).Seconds()) }()

	if q.generator != nil {
		for attempt := 1; attempt <= q.attempts; attempt++ {
			generated, err := q.generator.Generate(ctx, techStack, difficulty, count)
			if err == nil && len(generated) > 0 {
				questions = generated
				break
			}
			if err == nil {
				err = fmt.Errorf("%w: empty result", ErrGeneratorUnavailable)
			}
			log.Printf("⚠️ [QUESTIONS] Generation attempt %d/%d failed: %v", attempt, q.attempts, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if len(questions) > count {
		questions = questions[:count]
	}
	if len(questions) == count {
		q.metrics.GeneratorRequests.WithLabelValues("generated").Inc()
		return questions, false
	}

	outcome := "fallback"
	if len(questions) > 0 {
		outcome = "partial"
	}
	q.metrics.GeneratorRequests.WithLabelValues(outcome).Inc()

	questions = append(questions, q.bank.Pick(difficulty, techStack, count-len(questions), questions)...)
	return questions, true
}
