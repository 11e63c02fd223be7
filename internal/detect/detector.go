// Package detect turns raw request content into structured private-data
// findings using a Claude classifier. Rate limiting, context overflow and
// timeouts degrade to an empty result; they never abort a batch.
package detect

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mobiscope/traffic-cli/internal/model"
	"github.com/mobiscope/traffic-cli/internal/resilience"
	"github.com/mobiscope/traffic-cli/pkg/anthropic"
)

const (
	maxOutputTokens = 403
	temperature     = 0.68
)

// Config configures a Detector.
type Config struct {
	// Model is the primary classifier model.
	Model string
	// LargeContextModel handles prompts the primary model rejects as too
	// long. Empty disables escalation.
	LargeContextModel string
	// Source tags every finding with the analysis run that produced it.
	Source string
	// Timeout bounds a single completion round-trip. Default: 10s.
	Timeout time.Duration
	// RequestsPerMinute throttles calls client-side. Zero disables.
	RequestsPerMinute int
}

// Detector classifies request content into private-data findings.
type Detector struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
	retry   resilience.Policy
}

// New creates a Detector around an Anthropic client.
func New(client anthropic.Client, cfg Config) *Detector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Detector{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		retry: resilience.Policy{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			MaxElapsed:     30 * time.Second,
			ShouldRetry:    anthropic.IsRateLimited,
			OnRetry:        resilience.RetryLogger("anthropic", "classify"),
		},
	}
}

// Detect classifies one prompt (a query string or request body) into zero or
// more findings. Rate-limit exhaustion, context overflow on the large tier,
// timeouts and unparseable lines all yield an empty slice; only an
// unrecoverable transport error is returned, and callers treat that as "no
// result for this item". The returned slice is never nil.
func (d *Detector) Detect(ctx context.Context, prompt string) ([]model.PrivateData, error) {
	log := zap.L().With(
		zap.String("model", d.cfg.Model),
		zap.Int("prompt_len", len(prompt)),
	)
	log.Debug("classifying request content")

	resp, err := d.complete(ctx, prompt, d.cfg.Model)

	if err != nil && anthropic.IsRequestTooLarge(err) && d.cfg.LargeContextModel != "" && d.cfg.LargeContextModel != d.cfg.Model {
		log.Info("prompt exceeds context window, escalating",
			zap.String("large_model", d.cfg.LargeContextModel))
		resp, err = d.complete(ctx, prompt, d.cfg.LargeContextModel)
	}

	if err != nil {
		switch {
		case anthropic.IsRateLimited(err):
			log.Warn("rate limit retries exhausted", zap.Error(err))
			return []model.PrivateData{}, nil
		case anthropic.IsRequestTooLarge(err):
			log.Warn("prompt exceeds context window of every tier", zap.Error(err))
			return []model.PrivateData{}, nil
		case anthropic.IsTimeout(err):
			log.Warn("classification timed out", zap.Error(err))
			return []model.PrivateData{}, nil
		default:
			return nil, err
		}
	}

	resp.Usage.LogCost(resp.Model, "classify")

	return d.parse(resp.Text), nil
}

func (d *Detector) complete(ctx context.Context, prompt, modelID string) (*anthropic.MessageResponse, error) {
	temp := temperature
	req := anthropic.MessageRequest{
		Model:         modelID,
		MaxTokens:     maxOutputTokens,
		System:        instructions,
		Messages:      []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature:   &temp,
		StopSequences: []string{noData},
	}

	return resilience.Do(ctx, d.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return d.client.CreateMessage(callCtx, req)
	})
}

// parse splits the classifier's answer into findings. Each valid line is
// exactly three comma-separated fields; the category has all spaces removed,
// key and value are trimmed. Sentinel lines and echoed header lines are
// dropped, anything else that fails to parse is logged and skipped.
func (d *Detector) parse(answer string) []model.PrivateData {
	findings := []model.PrivateData{}

	answer = strings.TrimSpace(answer)
	if answer == "" || answer == noData {
		return findings
	}

	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == noData {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			zap.L().Warn("classifier line could not be parsed",
				zap.String("line", line),
				zap.Int("fields", len(fields)),
			)
			continue
		}

		category := strings.ReplaceAll(strings.TrimSpace(fields[0]), " ", "")
		key := strings.TrimSpace(fields[1])
		value := strings.TrimSpace(fields[2])

		if category == headerCategory && key == headerKey && value == headerValue {
			continue
		}

		findings = append(findings, model.PrivateData{
			Category: category,
			Key:      key,
			Value:    value,
			Source:   d.cfg.Source,
			Model:    d.cfg.Model,
			Count:    1,
		})
	}

	return findings
}
