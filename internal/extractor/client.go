// Package extractor calls the Anthropic Messages API to read medical-record PDFs and to score
// patients against trial eligibility. Calls are rate limited and wrapped in a circuit breaker.
package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pharmatrace-server/internal/domain"
)

// Messager is the subset of the Anthropic client used here.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client extracts patient data and scores trials.
type Client struct {
	messages Messager
	cfg      domain.AIConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

// New builds a Client backed by the Anthropic API.
func New(logger *logrus.Logger, cfg domain.AIConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.RetryCount),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	c := anthropic.NewClient(opts...)
	return NewWithMessager(logger, cfg, &c.Messages), nil
}

// NewWithMessager builds a Client over any Messager.
func NewWithMessager(logger *logrus.Logger, cfg domain.AIConfig, messages Messager) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	settings := gobreaker.Settings{
		Name:        "AnthropicMessages",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Client{
		messages: messages,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
	}
}

// Extract reads one PDF and returns the patient data the model found in it. A non-medical
// document is not an error; check PatientData.Accepted.
func (c *Client) Extract(ctx context.Context, pdf []byte) (*PatientData, error) {
	doc := anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
		Data: base64.StdEncoding.EncodeToString(pdf),
	})

	raw, err := c.generate(ctx, anthropic.NewUserMessage(doc, anthropic.NewTextBlock(extractionPrompt)))
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	var data PatientData
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.logger.WithFields(logrus.Fields{
		"document_type": data.DocumentType,
		"confidence":    data.Confidence,
		"conditions":    len(data.Conditions),
	}).Debug("Extracted patient data")
	return &data, nil
}

// Match scores the profile against each trial. Scores are clamped to [0,100] and entries
// for trials that were not asked about are dropped.
func (c *Client) Match(ctx context.Context, profile *domain.PatientProfile, trials []*domain.Trial) ([]TrialScore, error) {
	if len(trials) == 0 {
		return []TrialScore{}, nil
	}

	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	trialsJSON, err := json.MarshalIndent(trials, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode trials: %w", err)
	}

	prompt := fmt.Sprintf(matchingPrompt, profileJSON, trialsJSON)
	raw, err := c.generate(ctx, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
	if err != nil {
		return nil, fmt.Errorf("matching failed: %w", err)
	}

	var env matchEnvelope
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	known := make(map[string]bool, len(trials))
	for _, t := range trials {
		known[t.TrialID] = true
	}
	scores := make([]TrialScore, 0, len(env.Matches))
	seen := make(map[string]bool, len(env.Matches))
	for _, s := range env.Matches {
		if !known[s.TrialID] || seen[s.TrialID] {
			continue
		}
		seen[s.TrialID] = true
		s.MatchScore = min(max(s.MatchScore, 0), 100)
		scores = append(scores, s)
	}
	return scores, nil
}

func (c *Client) generate(ctx context.Context, msg anthropic.MessageParam) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.cfg.Model),
			MaxTokens:   c.cfg.MaxTokens,
			System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:    []anthropic.MessageParam{msg},
			Temperature: anthropic.Float(c.cfg.Temperature),
		})
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, b := range resp.Content {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String(), nil
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	return text, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
