package k6ext

import (
	k6metrics "go.k6.io/k6/metrics"
)

// Collector aggregates the samples of one metric pushed to it, much like a
// k6 output.
type Collector struct {
	metric  *k6metrics.Metric
	samples chan k6metrics.SampleContainer
	stats   chan Stats
}

// NewCollector starts collecting the samples of metric.
func NewCollector(metric *k6metrics.Metric) *Collector {
	c := &Collector{
		metric:  metric,
		samples: make(chan k6metrics.SampleContainer),
		stats:   make(chan Stats, 1),
	}
	go c.run()

	return c
}

func (c *Collector) run() {
	var all k6metrics.Samples
	for sc := range c.samples {
		all = append(all, sc.GetSamples()...)
	}
	c.stats <- ScoreStats(c.metric, all)
}

// Samples returns the channel samples are pushed to.
func (c *Collector) Samples() chan<- k6metrics.SampleContainer {
	return c.samples
}

// Stop stops collecting and returns the stats of the collected samples. No
// sample must be pushed after Stop.
func (c *Collector) Stop() Stats {
	close(c.samples)
	return <-c.stats
}
