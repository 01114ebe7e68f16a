// Package metrics aggregates latency and outcome of control plane API calls.
//
// A [Collector] is handed to the API client as its call recorder:
//
//	collector := metrics.NewCollector()
//	client, _ := cloudapi.New(baseURL, cloudapi.Options{Recorder: collector})
//	...
//	report := collector.Report()
//
// Latencies go into one HDR histogram per operation, so percentiles stay
// accurate without keeping every sample. Failures are bucketed by HTTP status
// when the error carries one (see [StatusCoder]) and by a readable error type
// otherwise.
//
// The Collector is safe for concurrent use; the orchestrator's poller records
// from its own goroutine while the foreground path records from another.
package metrics
