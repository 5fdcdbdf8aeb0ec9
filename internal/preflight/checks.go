package preflight

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"talentscout/internal/config"
	"talentscout/internal/crypto"
	"talentscout/internal/models"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is a store that can report connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// BankSizer reports how many fallback questions a bucket holds
type BankSizer interface {
	Size(difficulty models.Difficulty) int
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	cfg       *config.Config
	store     Pinger
	bank      BankSizer
	keySource crypto.KeySource
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config, store Pinger, bank BankSizer, keySource crypto.KeySource) *Checker {
	return &Checker{cfg: cfg, store: store, bank: bank, keySource: keySource}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkStoreConnection(ctx),
		c.checkEncryptionKey(),
		c.checkQuestionBank(),
		c.checkQuestionGenerator(),
		c.checkAllowedOrigins(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkStoreConnection(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Record Store",
			Status:  "fail",
			Message: fmt.Sprintf("Cannot reach %s store", c.cfg.StoreDriver),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Record Store",
		Status:  "pass",
		Message: fmt.Sprintf("%s store reachable", c.cfg.StoreDriver),
	}
}

// checkEncryptionKey fails an ephemeral key in production and warns elsewhere
func (c *Checker) checkEncryptionKey() CheckResult {
	switch c.keySource {
	case crypto.KeySourceLocal, crypto.KeySourceBackend:
		return CheckResult{
			Name:    "Encryption Key",
			Status:  "pass",
			Message: fmt.Sprintf("Key loaded from %s", c.keySource),
		}
	case crypto.KeySourceEphemeral:
		if c.cfg.IsProduction() {
			return CheckResult{
				Name:    "Encryption Key",
				Status:  "fail",
				Message: "Ephemeral key in production",
			}
		}
		return CheckResult{
			Name:    "Encryption Key",
			Status:  "warning",
			Message: "Ephemeral key: stored records become unreadable after restart. Set ENCRYPTION_KEY.",
		}
	default:
		return CheckResult{
			Name:    "Encryption Key",
			Status:  "fail",
			Message: "Key has not been resolved",
		}
	}
}

// checkQuestionBank requires enough fallback questions to fill an interview in every bucket
func (c *Checker) checkQuestionBank() CheckResult {
	var short []string
	for _, d := range []models.Difficulty{models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced} {
		if n := c.bank.Size(d); n < c.cfg.QuestionCount {
			short = append(short, fmt.Sprintf("%s has %d", d, n))
		}
	}
	if len(short) > 0 {
		return CheckResult{
			Name:    "Question Bank",
			Status:  "fail",
			Message: fmt.Sprintf("Need %d questions per difficulty: %s", c.cfg.QuestionCount, strings.Join(short, ", ")),
		}
	}
	return CheckResult{
		Name:    "Question Bank",
		Status:  "pass",
		Message: "Fallback questions available for every difficulty",
	}
}

func (c *Checker) checkQuestionGenerator() CheckResult {
	if c.cfg.LLMAPIKey == "" {
		return CheckResult{
			Name:    "Question Generator",
			Status:  "warning",
			Message: "LLM_API_KEY not set, interviews will use fallback questions only",
		}
	}
	return CheckResult{
		Name:    "Question Generator",
		Status:  "pass",
		Message: fmt.Sprintf("Using %s at %s", c.cfg.LLMModel, c.cfg.LLMBaseURL),
	}
}

func (c *Checker) checkAllowedOrigins() CheckResult {
	if c.cfg.IsProduction() && strings.Contains(c.cfg.AllowedOrigins, "*") {
		return CheckResult{
			Name:    "CORS",
			Status:  "warning",
			Message: "ALLOWED_ORIGINS contains a wildcard in production",
		}
	}
	return CheckResult{
		Name:    "CORS",
		Status:  "pass",
		Message: "Allowed origins: " + c.cfg.AllowedOrigins,
	}
}
