package analyser

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/phobologic/layerguard/internal/rules"
)

var (
	tracer = otel.Tracer("layerguard.analyser")
	meter  = otel.Meter("layerguard.analyser")
)

var (
	filesParsed     metric.Int64Counter
	cacheHits       metric.Int64Counter
	parseFailures   metric.Int64Counter
	classifications metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. The global meter provider is a
// no-op unless the CLI installs one.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		filesParsed, err = meter.Int64Counter(
			"layerguard_files_parsed_total",
			metric.WithDescription("Files extracted with the parser"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"layerguard_cache_hits_total",
			metric.WithDescription("Files served from the reference cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseFailures, err = meter.Int64Counter(
			"layerguard_parse_failures_total",
			metric.WithDescription("Files that could not be parsed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		classifications, err = meter.Int64Counter(
			"layerguard_dependencies_total",
			metric.WithDescription("Classified dependencies by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordExtraction(ctx context.Context, parsed, hits, failures int) {
	if err := initMetrics(); err != nil {
		return
	}
	filesParsed.Add(ctx, int64(parsed))
	cacheHits.Add(ctx, int64(hits))
	parseFailures.Add(ctx, int64(failures))
}

func recordCounts(ctx context.Context, c rules.Counts) {
	if err := initMetrics(); err != nil {
		return
	}
	for cl, n := range map[rules.Classification]int{
		rules.Allowed:   c.Allowed,
		rules.Violation: c.Violation,
		rules.Skipped:   c.Skipped,
		rules.Uncovered: c.Uncovered,
	} {
		classifications.Add(ctx, int64(n), metric.WithAttributes(attribute.String("classification", string(cl))))
	}
}
