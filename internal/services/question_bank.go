package services

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"talentscout/internal/models"
)

//go:embed question_bank.yaml
var defaultQuestionBank []byte

// QuestionBank holds the built-in per-bucket fallback questions. It can be
// overridden from a YAML file and reloaded when the file changes.
type QuestionBank struct {
	mu        sync.RWMutex
	questions map[models.Difficulty][]string
	path      string
}

// NewQuestionBank loads the bank from path, or the embedded default when path is empty.
func NewQuestionBank(path string) (*QuestionBank, error) {
	b := &QuestionBank{path: path}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the bank. On error the previous questions stay in place.
func (b *QuestionBank) Reload() error {
	data := defaultQuestionBank
	if b.path != "" {
		raw, err := os.ReadFile(b.path)
		if err != nil {
			return fmt.Errorf("failed to read question bank: %w", err)
		}
		data = raw
	}

	parsed, err := parseQuestionBank(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.questions = parsed
	b.mu.Unlock()
	return nil
}

func parseQuestionBank(data []byte) (map[models.Difficulty][]string, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	parsed := make(map[models.Difficulty][]string)
	for _, d := range []models.Difficulty{models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced} {
		var qs []string
		for _, q := range raw[string(d)] {
			if q = strings.TrimSpace(q); q != "" {
				qs = append(qs, q)
			}
		}
		if len(qs) < 5 {
			return nil, fmt.Errorf("question bank needs at least 5 %s questions, has %d", d, len(qs))
		}
		parsed[d] = qs
	}
	return parsed, nil
}

// Pick returns up to n questions for the bucket, filling "{tech}" round-robin
// from techStack and skipping anything in exclude.
func (b *QuestionBank) Pick(difficulty models.Difficulty, techStack []string, n int, exclude []string) []string {
	b.mu.RLock()
	templates := b.questions[difficulty]
	b.mu.RUnlock()

	seen := make(map[string]bool, len(exclude))
	for _, q := range exclude {
		seen[q] = true
	}

	var out []string
	techIdx := 0
	for _, tpl := range templates {
		if len(out) >= n {
			break
		}
		q := tpl
		if strings.Contains(tpl, "{tech}") {
			tech := "your main technology"
			if len(techStack) > 0 {
				tech = techStack[techIdx%len(techStack)]
				techIdx++
			}
			q = strings.ReplaceAll(tpl, "{tech}", tech)
		}
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

// Size returns the number of questions for a bucket.
func (b *QuestionBank) Size(difficulty models.Difficulty) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.questions[difficulty])
}

// Watch reloads the bank when its file changes, until ctx is done.
// It is a no-op for the embedded bank.
func (b *QuestionBank) Watch(ctx context.Context) {
	if b.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create question bank watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(b.path)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", b.path, err)
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", b.path)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := b.Reload(); err != nil {
						log.Printf("❌ Failed to reload question bank, keeping previous questions: %v", err)
						return
					}
					log.Printf("✅ Question bank reloaded from %s", b.path)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Question bank watcher error: %v", err)
		}
	}
}
