package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/torosent/lrcctl/internal/metrics"
)

// RunSummary describes how a started run ended on the client side.
type RunSummary struct {
	RunID         int64          `json:"run_id"`
	ProjectID     string         `json:"project_id"`
	LoadTestID    string         `json:"load_test_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Outcome       string         `json:"outcome"`
	Elapsed       time.Duration  `json:"-"`
	ElapsedMs     float64        `json:"elapsed_ms"`
	Calls         metrics.Report `json:"calls"`
}

// PrintRunSummary outputs the run outcome followed by the API call report.
func PrintRunSummary(w io.Writer, s RunSummary) {
	fmt.Fprintln(w, "\n--- Run Summary ---")
	fmt.Fprintf(w, "Run:               %d (project %s, load test %s)\n", s.RunID, s.ProjectID, s.LoadTestID)
	if s.CorrelationID != "" {
		fmt.Fprintf(w, "Correlation ID:    %s\n", s.CorrelationID)
	}
	fmt.Fprintf(w, "Outcome:           %s\n", s.Outcome)
	fmt.Fprintf(w, "Elapsed:           %s\n", s.Elapsed.Round(time.Millisecond))
	PrintReport(w, s.Calls)
}

// PrintReport outputs a human-readable summary of API calls.
func PrintReport(w io.Writer, report metrics.Report) {
	stats := report.Overall
	fmt.Fprintln(w, "\n--- API Calls ---")
	fmt.Fprintf(w, "Total Calls:       %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	if stats.Total == 0 {
		return
	}
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(report.Operations) > 0 {
		fmt.Fprintln(w, "\nOperations:")
		for _, name := range report.OperationNames() {
			op := report.Operations[name]
			fmt.Fprintf(w, "  - %s: total=%d, successes=%d, failures=%d, p99=%s\n",
				name, op.Total, op.Successes, op.Failures, op.P99Latency)
			kinds := make([]string, 0, len(op.Errors))
			for kind := range op.Errors {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				fmt.Fprintf(w, "      %s: %d\n", kind, op.Errors[kind])
			}
		}
	}
	if len(report.Statuses) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, report.Statuses, "  ")
	}
}

// PrintJSONReport outputs v as indented JSON.
func PrintJSONReport(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStatusBuckets(w io.Writer, rows []metrics.StatusBucket, indent string) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, row.Operation, row.Code, row.Count)
	}
}
