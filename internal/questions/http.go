package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider injects per-request headers (service tokens and the like).
type HeaderProvider func() map[string]string

// HTTPSource fetches questions from a remote content service:
// GET {base}/questions?category=X&count=N returning a JSON array of
// {question, answer} pairs. Answers arrive as strings or numbers.
type HTTPSource struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	timeout time.Duration
}

type HTTPOption func(*HTTPSource)

func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.timeout = d }
}

func WithHeaderProvider(h HeaderProvider) HTTPOption {
	return func(s *HTTPSource) { s.headers = h }
}

func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 16,
		},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type wireQuestion struct {
	Question string `json:"question"`
	Answer   any    `json:"answer"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, category string, count int) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uri := s.baseURL + "/questions?category=" + url.QueryEscape(category) + "&count=" + strconv.Itoa(count)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)
	if s.headers != nil {
		for k, v := range s.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("question service request: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("question service status %d", code)
	}

	var wire []wireQuestion
	if err := json.Unmarshal(resp.Body(), &wire); err != nil {
		return nil, fmt.Errorf("question service payload: %w", err)
	}

	out := make([]Question, 0, len(wire))
	for _, w := range wire {
		if strings.TrimSpace(w.Question) == "" {
			continue
		}
		out = append(out, Question{
			Prompt: w.Question,
			Answer: strings.TrimSpace(coerceAnswer(w.Answer)),
		})
	}
	if len(out) < count {
		return nil, fmt.Errorf("%w: %q returned %d, want %d", ErrInsufficientContent, category, len(out), count)
	}
	return out[:count], nil
}

// coerceAnswer renders a JSON answer value as the canonical comparison
// string. Whole numbers lose their ".0" so 5 and "5" compare equal.
func coerceAnswer(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(n)
	}
}
