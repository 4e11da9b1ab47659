package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// spanExcluder drops spans whose name is in the excluded set and samples
// the remainder with the configured probability.
type spanExcluder struct {
	excluded map[string]struct{}
	sampler  sdktrace.Sampler
}

func newSpanExcluder(excluded map[string]struct{}, probability float64) spanExcluder {
	return spanExcluder{
		excluded: excluded,
		sampler:  sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements the sdktrace.Sampler interface.
func (se spanExcluder) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, ok := se.excluded[p.Name]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	return se.sampler.ShouldSample(p)
}

// Description implements the sdktrace.Sampler interface.
func (se spanExcluder) Description() string { return "spanExcluder" }
