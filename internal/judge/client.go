package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// maxResponseChars caps the response body embedded in the judge prompt
	maxResponseChars = 4000

	systemPrompt = `You are a strict QA judge for a recruitment assistant. ` +
		`Score the assistant response against the given criterion. ` +
		`Reply with a single JSON object: {"score": <0-10 number>, "passed": <boolean>, "reason": "<short explanation>"}.`
)

// Verdict is the structured judge output
type Verdict struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
	Reason string  `json:"reason"`
}

// Usage reports token consumption of one judge call
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Request is one judge evaluation request
type Request struct {
	Query          string
	ExpectedResult string
	Response       string
	CriterionName  string
	Criterion      string
}

// Client calls the chat-completion API for qualitative scoring
type Client struct {
	api         openai.Client
	model       string
	maxAttempts int
}

// NewClient creates a judge client. baseURL may be empty for the default API.
func NewClient(apiKey, baseURL, model string, maxAttempts int) *Client {
	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(baseURL))
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Client{
		api:         openai.NewClient(opts...),
		model:       model,
		maxAttempts: maxAttempts,
	}
}

// Judge sends one evaluation prompt and parses the structured verdict.
// Transport and parse failures come back as errors, never panics; only
// clearly transient failures (timeouts, 429, 5xx) are retried.
func (c *Client) Judge(ctx context.Context, req Request) (*Verdict, Usage, error) {
	prompt := buildPrompt(req)

	var lastErr error
	delay := 1 * time.Second

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		verdict, usage, err := c.judgeOnce(ctx, prompt)
		if err == nil {
			return verdict, usage, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == c.maxAttempts {
			return nil, Usage{}, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, Usage{}, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	return nil, Usage{}, lastErr
}

func (c *Client) judgeOnce(ctx context.Context, prompt string) (*Verdict, Usage, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("judge call: %w", err)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	if len(resp.Choices) == 0 {
		return nil, usage, fmt.Errorf("judge returned no choices")
	}

	verdict, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, usage, err
	}

	return verdict, usage, nil
}

// ParseVerdict parses the judge's JSON verdict, tolerating surrounding text
// such as markdown code fences.
func ParseVerdict(content string) (*Verdict, error) {
	trimmed := strings.TrimSpace(content)

	// Cut to the outermost JSON object when the model wrapped it in prose
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge response: %.80s", trimmed)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}

	return &verdict, nil
}

func buildPrompt(req Request) string {
	response := req.Response
	if len(response) > maxResponseChars {
		response = response[:maxResponseChars] + "\n...[truncated]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User query:\n%s\n\n", req.Query)
	if req.ExpectedResult != "" {
		fmt.Fprintf(&b, "Expected result:\n%s\n\n", req.ExpectedResult)
	}
	fmt.Fprintf(&b, "Assistant response:\n%s\n\n", response)
	fmt.Fprintf(&b, "Criterion (%s):\n%s\n", req.CriterionName, req.Criterion)
	return b.String()
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// Plain transport errors (connection reset, EOF) are worth one more try
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
