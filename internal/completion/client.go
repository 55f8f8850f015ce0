// Package completion talks to an OpenAI-compatible chat completion endpoint
// (Groq by default). Every call goes through the retrying request client and
// a circuit breaker.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/retryhttp"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
)

var (
	ErrEmptyContent    = errors.New("API returned an invalid response structure")
	ErrInvalidResponse = errors.New("completion response is not valid JSON")
	ErrUnavailable     = errors.New("completion endpoint unavailable")
)

type Requester interface {
	Send(ctx context.Context, url string, req retryhttp.Request, maxAttempts int) (*retryhttp.Response, error)
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxAttempts int
}

// Request is a single chat completion call.
type Request struct {
	Messages    []models.ChatMessage
	Temperature float32
	MaxTokens   int
	// JSONObject asks the model to answer with a JSON object.
	JSONObject bool
}

type Client struct {
	requester   Requester
	url         string
	apiKey      string
	model       string
	maxAttempts int
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewClient(requester Requester, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = retryhttp.DefaultMaxAttempts
	}

	c := &Client{
		requester:   requester,
		url:         BuildURL(cfg.BaseURL),
		apiKey:      cfg.APIKey,
		model:       model,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// BuildURL appends the chat completions path unless it is already present.
func BuildURL(baseURL string) string {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func (c *Client) Model() string {
	return c.model
}

// Complete returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}

	body, err := c.buildBody(req)
	if err != nil {
		return "", err
	}

	requestID := uuid.NewString()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Sending completion request",
		zap.String("request_id", requestID),
		zap.String("model", c.model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("json_object", req.JSONObject))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.requester.Send(ctx, c.url, retryhttp.Request{
			Method: http.MethodPost,
			Header: header,
			Body:   body,
		}, c.maxAttempts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}

	resp, ok := result.(*retryhttp.Response)
	if !ok || resp == nil {
		return "", ErrEmptyContent
	}

	content, err := ParseContent(resp.Body)
	if err != nil {
		c.logger.Warn("Completion response rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		return "", err
	}

	c.logger.Debug("Completion received",
		zap.String("request_id", requestID),
		zap.Int("attempts", resp.Attempts),
		zap.Int("content_len", len(content)))
	return content, nil
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	payload := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONObject {
		payload.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}
	return body, nil
}

// ParseContent extracts choices[0].message.content from a completion body.
func ParseContent(body []byte) (string, error) {
	var parsed openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyContent
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
