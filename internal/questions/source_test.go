package questions

import (
	"context"
	"errors"
	"testing"
)

func TestBankFetchFillsBoard(t *testing.T) {
	b, err := NewBank()
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	qs, err := b.Fetch(context.Background(), "easy", 9)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(qs) != 9 {
		t.Fatalf("expected 9 questions, got %d", len(qs))
	}

	seen := make(map[string]bool)
	for _, q := range qs {
		if q.Prompt == "" || q.Answer == "" {
			t.Fatalf("incomplete question: %+v", q)
		}
		if seen[q.Prompt] {
			t.Fatalf("duplicate prompt %q", q.Prompt)
		}
		seen[q.Prompt] = true
	}
}

func TestBankFetchUnknownCategory(t *testing.T) {
	b, err := NewBank()
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	if _, err := b.Fetch(context.Background(), "geography", 9); !errors.Is(err, ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
}

func TestBankFetchTooMany(t *testing.T) {
	b, err := NewBank()
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	if _, err := b.Fetch(context.Background(), "easy", 50); !errors.Is(err, ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
}

func TestBankCoercesNumericAnswers(t *testing.T) {
	b, err := parseBank([]byte("quicktest:\n  - { prompt: \"24 ÷ 2.5\", answer: 9.6 }\n  - { prompt: \"2 + 3\", answer: 5 }\n  - { prompt: \"d/dx(x²)\", answer: \"2x\" }\n"))
	if err != nil {
		t.Fatalf("parseBank: %v", err)
	}
	qs, err := b.Fetch(context.Background(), "quicktest", 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	byPrompt := make(map[string]string)
	for _, q := range qs {
		byPrompt[q.Prompt] = q.Answer
	}
	for prompt, want := range map[string]string{
		"24 ÷ 2.5": "9.6",
		"2 + 3":    "5",
		"d/dx(x²)": "2x",
	} {
		if got := byPrompt[prompt]; got != want {
			t.Errorf("%s: answer %q, want %q", prompt, got, want)
		}
	}
}

func TestCoerceAnswer(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"cos x", "cos x"},
		{float64(5), "5"},
		{9.6, "9.6"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := coerceAnswer(c.in); got != c.want {
			t.Errorf("coerceAnswer(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
