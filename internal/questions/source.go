// Package questions supplies prompt/answer pairs for game boards. The
// coordinator only sees the Source interface; implementations are the
// embedded YAML bank and an HTTP content service client.
package questions

import (
	"context"
	"crypto/rand"
	_ "embed"
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Question is a single prompt with its expected answer. Answers are kept as
// strings regardless of their source representation; comparison happens
// case-insensitively on the string form.
type Question struct {
	Prompt string `json:"question"`
	Answer string `json:"answer"`
}

// Source fetches count distinct questions for a category.
type Source interface {
	Fetch(ctx context.Context, category string, count int) ([]Question, error)
}

// ErrInsufficientContent means the category has fewer questions than asked
// for (including none at all).
var ErrInsufficientContent = errf("not enough questions for category")

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }

//go:embed bank.yaml
var bankYAML []byte

type bankEntry struct {
	Prompt string `yaml:"prompt"`
	Answer any    `yaml:"answer"`
}

// Bank is the embedded default question source.
type Bank struct {
	byCategory map[string][]Question
}

// NewBank parses the embedded bank.
func NewBank() (*Bank, error) {
	return parseBank(bankYAML)
}

func parseBank(raw []byte) (*Bank, error) {
	var doc map[string][]bankEntry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	b := &Bank{byCategory: make(map[string][]Question, len(doc))}
	for cat, entries := range doc {
		qs := make([]Question, 0, len(entries))
		for _, e := range entries {
			if strings.TrimSpace(e.Prompt) == "" {
				continue
			}
			qs = append(qs, Question{
				Prompt: e.Prompt,
				Answer: strings.TrimSpace(fmt.Sprint(e.Answer)),
			})
		}
		b.byCategory[strings.ToLower(cat)] = qs
	}
	return b, nil
}

// Categories lists the categories the bank can serve.
func (b *Bank) Categories() []string {
	out := make([]string, 0, len(b.byCategory))
	for cat := range b.byCategory {
		out = append(out, cat)
	}
	return out
}

// Fetch returns count questions for category in random order, each at most
// once. Fails with ErrInsufficientContent when the category cannot fill the
// request.
func (b *Bank) Fetch(_ context.Context, category string, count int) ([]Question, error) {
	pool, ok := b.byCategory[strings.ToLower(strings.TrimSpace(category))]
	if !ok || len(pool) < count {
		return nil, fmt.Errorf("%w: %q has %d, want %d", ErrInsufficientContent, category, len(pool), count)
	}
	picked := make([]Question, len(pool))
	copy(picked, pool)
	shuffle(picked)
	return picked[:count], nil
}

// shuffle is a Fisher-Yates pass driven by crypto/rand.
func shuffle(qs []Question) {
	for i := len(qs) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}
