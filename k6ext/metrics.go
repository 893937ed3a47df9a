// Package k6ext bridges benchmark results to k6 metrics.
package k6ext

import (
	"context"
	"time"

	k6metrics "go.k6.io/k6/metrics"

	"github.com/browserbench/browserbench/results"
)

// Tag names set on every sample.
const (
	TagChart = "chart"
	TagTrace = "trace"
	TagPage  = "page"
)

// CustomMetrics are the k6 metrics benchmark results are reported as.
type CustomMetrics struct {
	// PerfMarksScore holds every value of the Score list.
	PerfMarksScore *k6metrics.Metric
	// PerfMarksTrace holds the individual test values.
	PerfMarksTrace *k6metrics.Metric
}

// RegisterCustomMetrics creates and registers our custom metrics with the k6
// Registry and returns our internal struct pointer.
func RegisterCustomMetrics(registry *k6metrics.Registry) *CustomMetrics {
	return &CustomMetrics{
		PerfMarksScore: registry.MustNewMetric("perfmarks_score", k6metrics.Trend),
		PerfMarksTrace: registry.MustNewMetric("perfmarks_trace", k6metrics.Trend),
	}
}

// Samples converts the values of set to k6 samples taken at t. List values
// produce one sample per element.
func Samples(cm *CustomMetrics, registry *k6metrics.Registry, set *results.Set, t time.Time) k6metrics.Samples {
	var samples k6metrics.Samples
	for _, v := range set.Values() {
		metric := cm.PerfMarksTrace
		if v.IsList {
			metric = cm.PerfMarksScore
		}
		tags := registry.RootTagSet().WithTagsFromMap(map[string]string{
			TagChart: v.Chart,
			TagTrace: v.Trace,
			TagPage:  v.Page,
		})
		for _, value := range v.Values {
			samples = append(samples, k6metrics.Sample{
				TimeSeries: k6metrics.TimeSeries{Metric: metric, Tags: tags},
				Time:       t,
				Value:      value,
			})
		}
	}
	return samples
}

// PushIfNotDone is a helper function to push a sample to a channel if the
// context is not done. It returns true if the sample was pushed, false if the
// context was done.
func PushIfNotDone(ctx context.Context, output chan<- k6metrics.SampleContainer, sample k6metrics.SampleContainer) bool {
	select {
	case <-ctx.Done():
		return false
	case output <- sample:
		return true
	}
}

// Stats summarizes the samples of a metric.
type Stats struct {
	Count uint64
	Min   float64
	Avg   float64
	Med   float64
	P90   float64
	Max   float64
}

// ScoreStats aggregates the samples of metric in a k6 trend sink.
func ScoreStats(metric *k6metrics.Metric, samples k6metrics.Samples) Stats {
	sink := k6metrics.NewTrendSink()
	for _, s := range samples {
		if s.Metric == metric {
			sink.Add(s)
		}
	}
	return Stats{
		Count: sink.Count(),
		Min:   sink.Min(),
		Avg:   sink.Avg(),
		Med:   sink.P(0.5),
		P90:   sink.P(0.9),
		Max:   sink.Max(),
	}
}
