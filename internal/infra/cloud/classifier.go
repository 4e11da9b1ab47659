// Package cloud provides the HTTP client for the remote risk-classification
// service. Only sanitized text and detection metadata ever leave the device;
// pixel data is never transmitted.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.RiskClassifier = (*Classifier)(nil)

// ErrNoConsent is returned when analysis is requested without the user
// having opted in to cloud processing.
var ErrNoConsent = errors.New("cloud analysis requires explicit user consent")

// Config holds the settings for the risk-classification client.
type Config struct {
	Endpoint string
	APIKey   string

	// Consented must be set explicitly; the client refuses to transmit
	// anything without it.
	Consented bool

	Timeout        time.Duration
	MaxElapsedTime time.Duration
	RPS            float64
	Burst          int
}

// Classifier calls the remote risk-classification service. Calls are rate
// limited and retried with exponential backoff on transient failures.
type Classifier struct {
	cfg        Config
	httpClient *http.Client
	limiter    *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClassifier creates a risk-classification client from the given config.
func NewClassifier(cfg Config, log *logger.Logger, tracer trace.Tracer) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = time.Minute
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Classifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    common.NewRateLimiter(cfg.RPS, cfg.Burst),
		logger:     log.With("component", "risk_classifier"),
		tracer:     tracer,
	}
}

type detectionPayload struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type analysisRequest struct {
	RequestID  string             `json:"request_id"`
	Text       string             `json:"text"`
	Detections []detectionPayload `json:"detections"`
}

type analysisResponse struct {
	Explanation        string   `json:"explanation"`
	RiskLevel          string   `json:"risk_level"`
	KeyPhrases         []string `json:"key_phrases"`
	RecommendedActions []string `json:"recommended_actions"`
	Categories         []struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"categories"`
}

// GenerateAnalysis sends sanitized text and detection metadata to the
// classification service and maps the response to a SensitiveAnalysis.
// Transient failures are retried; a 4xx response is not.
func (c *Classifier) GenerateAnalysis(ctx context.Context, text string, detections []scanning.Detection) (*scanning.SensitiveAnalysis, error) {
	if !c.cfg.Consented {
		return nil, ErrNoConsent
	}

	requestID := uuid.New().String()
	ctx, span := c.tracer.Start(ctx, "risk_classifier.generate_analysis",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.Int("detection_count", len(detections)),
		))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	payload := analysisRequest{
		RequestID:  requestID,
		Text:       Sanitize(text),
		Detections: make([]detectionPayload, len(detections)),
	}
	for i, d := range detections {
		payload.Detections[i] = detectionPayload{Label: d.Label, Confidence: d.Confidence}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis request: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.cfg.MaxElapsedTime
	expBackoff.InitialInterval = 500 * time.Millisecond

	var resp analysisResponse
	operation := func() error {
		var opErr error
		resp, opErr = c.post(ctx, body)
		return opErr
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis request failed")
		return nil, fmt.Errorf("requesting analysis: %w", err)
	}

	categories := make([]scanning.CategoryPrediction, len(resp.Categories))
	for i, cat := range resp.Categories {
		categories[i] = scanning.CategoryPrediction{Category: cat.Category, Confidence: cat.Confidence}
	}

	level := scanning.ParseRiskLevel(resp.RiskLevel)
	span.SetAttributes(attribute.String("risk_level", level.String()))

	return scanning.NewSensitiveAnalysis(
		resp.Explanation,
		level,
		resp.KeyPhrases,
		resp.RecommendedActions,
		categories,
	), nil
}

func (c *Classifier) post(ctx context.Context, body []byte) (analysisResponse, error) {
	var out analysisResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return out, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "analysis request failed, will retry", "error", err)
		return out, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return out, err
	}

	switch {
	case httpResp.StatusCode >= 500:
		c.logger.Warn(ctx, "analysis service unavailable, will retry", "status", httpResp.StatusCode)
		return out, fmt.Errorf("analysis service returned %d", httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		return out, backoff.Permanent(fmt.Errorf("analysis request rejected with %d", httpResp.StatusCode))
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, backoff.Permanent(fmt.Errorf("decoding analysis response: %w", err))
	}
	return out, nil
}
