package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/logger"
)

const (
	// DefaultApproveThreshold is the minimum score that admits an observation.
	DefaultApproveThreshold = 6
	// DefaultHardFloor is the minimum score treated as a genuine attempt.
	// Scores in [hard floor, approve threshold) are soft rejections.
	DefaultHardFloor = 4
	// DefaultTimeout bounds a single scoring call.
	DefaultTimeout = 15 * time.Second
)

// Evaluator scores an observation text. Implementations must never block
// past their configured timeout; an unreachable scorer is reported as
// OutcomeUnavailable, not as an open-ended error.
//
//go:generate mockgen -source=evaluator.go -destination=../mocks/evaluator.go -package=mocks -mock_names=Evaluator=MockEvaluator
type Evaluator interface {
	Evaluate(ctx context.Context, text string) domain.Evaluation
}

// Config configures the HTTP evaluator client.
type Config struct {
	URL              string
	APIKey           string
	Timeout          time.Duration
	ApproveThreshold int
	HardFloor        int
}

type client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates an Evaluator backed by a remote scoring endpoint.
func NewClient(cfg Config) Evaluator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ApproveThreshold <= 0 {
		cfg.ApproveThreshold = DefaultApproveThreshold
	}
	if cfg.HardFloor <= 0 {
		cfg.HardFloor = DefaultHardFloor
	}
	return &client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// scoreRequest is the wire format sent to the scoring endpoint.
type scoreRequest struct {
	Text string `json:"text"`
}

// scoreResponse is the loosely-typed wire format returned by the scoring
// endpoint. It is parsed exactly once, here, into domain.Evaluation.
type scoreResponse struct {
	Score    *int   `json:"score"`
	Reason   string `json:"reason"`
	FollowUp string `json:"followUp"`
}

// Evaluate scores text and classifies the result into the tagged outcome
// bands. Transport failures, non-2xx responses and malformed bodies all
// collapse into OutcomeUnavailable.
func (c *client) Evaluate(ctx context.Context, text string) domain.Evaluation {
	body, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return c.unavailable(ctx, fmt.Errorf("failed to marshal score request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return c.unavailable(ctx, fmt.Errorf("failed to build score request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unavailable(ctx, fmt.Errorf("scoring call failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.unavailable(ctx, fmt.Errorf("scoring endpoint returned %d", resp.StatusCode))
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return c.unavailable(ctx, fmt.Errorf("failed to decode score response: %w", err))
	}
	if sr.Score == nil {
		return c.unavailable(ctx, fmt.Errorf("score response missing score field"))
	}

	return Classify(*sr.Score, sr.Reason, sr.FollowUp, c.cfg.ApproveThreshold, c.cfg.HardFloor)
}

func (c *client) unavailable(ctx context.Context, err error) domain.Evaluation {
	logger.ErrorCtx(ctx, fmt.Errorf("%w: %v", domain.ErrEvaluatorUnavailable, err))
	return domain.Evaluation{Outcome: domain.OutcomeUnavailable}
}

// Classify maps a raw score into the tagged outcome bands.
func Classify(score int, reason, followUp string, approveThreshold, hardFloor int) domain.Evaluation {
	switch {
	case score >= approveThreshold:
		return domain.Evaluation{Outcome: domain.OutcomeApproved, Score: score, Reason: reason}
	case score >= hardFloor:
		if followUp == "" {
			followUp = "Tell us more: what did you actually see, and what did it change?"
		}
		return domain.Evaluation{Outcome: domain.OutcomeSoftReject, Score: score, Reason: reason, FollowUp: followUp}
	default:
		return domain.Evaluation{Outcome: domain.OutcomeHardReject, Score: score, Reason: reason}
	}
}

// LogFields returns structured fields for an evaluation, for request logs.
func LogFields(ev domain.Evaluation) []zap.Field {
	return []zap.Field{
		zap.String("outcome", string(ev.Outcome)),
		zap.Int("score", ev.Score),
	}
}
