package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

func newTestClassifier(t *testing.T, endpoint string, consented bool) *Classifier {
	t.Helper()
	return NewClassifier(Config{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		Consented:      consented,
		Timeout:        2 * time.Second,
		MaxElapsedTime: 3 * time.Second,
		RPS:            100,
		Burst:          10,
	}, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
}

func analysisOK(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"explanation":         "card number visible",
		"risk_level":          "high",
		"key_phrases":         []string{"VALID THRU"},
		"recommended_actions": []string{"delete"},
		"categories": []map[string]any{
			{"category": "credit_card", "confidence": 0.93},
		},
	})
}

func TestClassifier_GenerateAnalysis(t *testing.T) {
	t.Parallel()

	var gotBody analysisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		analysisOK(w)
	}))
	defer srv.Close()

	c := newTestClassifier(t, srv.URL, true)

	analysis, err := c.GenerateAnalysis(context.Background(),
		"VISA 4111 1111 1111 1111",
		[]scanning.Detection{{Label: scanning.LabelCreditCard, Confidence: 0.88}})
	require.NoError(t, err)

	assert.Equal(t, scanning.RiskLevelHigh, analysis.RiskLevel())
	assert.Equal(t, "card number visible", analysis.Explanation())
	assert.Equal(t, []string{"VALID THRU"}, analysis.KeyPhrases())
	require.Len(t, analysis.Categories(), 1)
	assert.Equal(t, "credit_card", analysis.Categories()[0].Category)

	// The wire payload carries sanitized text and no pixels.
	assert.Equal(t, "VISA #### #### #### ####", gotBody.Text)
	assert.NotEmpty(t, gotBody.RequestID)
	require.Len(t, gotBody.Detections, 1)
	assert.Equal(t, scanning.LabelCreditCard, gotBody.Detections[0].Label)
}

func TestClassifier_RequiresConsent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		analysisOK(w)
	}))
	defer srv.Close()

	c := newTestClassifier(t, srv.URL, false)

	_, err := c.GenerateAnalysis(context.Background(), "text", nil)
	require.ErrorIs(t, err, ErrNoConsent)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClassifier_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		analysisOK(w)
	}))
	defer srv.Close()

	c := newTestClassifier(t, srv.URL, true)

	analysis, err := c.GenerateAnalysis(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.True(t, analysis.IsClassified())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifier_DoesNotRetryRejections(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClassifier(t, srv.URL, true)

	_, err := c.GenerateAnalysis(context.Background(), "text", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifier_UnknownRiskLevelMapsToUnknown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"explanation": "odd",
			"risk_level":  "critical",
		})
	}))
	defer srv.Close()

	c := newTestClassifier(t, srv.URL, true)

	analysis, err := c.GenerateAnalysis(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.Equal(t, scanning.RiskLevelUnknown, analysis.RiskLevel())
	assert.False(t, analysis.IsClassified())
}
