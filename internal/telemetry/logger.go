// Package telemetry provides the structured logger and Prometheus-backed
// commit/abort recorder shared by tm and cmd/stmbench. Grounded on
// talent-plan-tinykv's use of go.uber.org/zap for structured logging and
// github.com/prometheus/client_golang for counters/histograms exported
// from a long-running process.
package telemetry

import "go.uber.org/zap"

// NewLogger builds a production zap logger, or a development one with
// human-readable output when dev is true. Callers that don't need logging
// at all should pass zap.NewNop() to tl2.WithLogger/tm.WithLogger instead
// of calling this.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
