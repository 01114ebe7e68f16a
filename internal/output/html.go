package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/lrcctl/internal/events"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt    string
	Summary        RunSummary
	OperationNames []string
	Events         []events.Event
}

// GenerateHTMLReport writes a standalone HTML page describing one run and
// the notifications it produced.
func GenerateHTMLReport(w io.Writer, summary RunSummary, timeline []events.Event) error {
	data := HTMLReportData{
		GeneratedAt:    time.Now().Format(time.RFC3339),
		Summary:        summary,
		OperationNames: summary.Calls.OperationNames(),
		Events:         timeline,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Microsecond).String()
		},
		"formatTime": func(t time.Time) string {
			return t.Format("15:04:05.000")
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"outcomeClass": func(outcome string) string {
			if outcome == "running" {
				return "pass"
			}
			return "fail"
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Run {{.Summary.RunID}} Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1100px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 1.6rem; font-weight: 600; word-break: break-all; }
        .pass { color: #10b981; }
        .fail { color: #ef4444; }
        h2 { margin-bottom: 15px; font-size: 1.3rem; }
        section { margin-bottom: 40px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px 12px; border-bottom: 1px solid #e9ecef; }
        th { background: #f8f9fa; font-size: 0.85rem; text-transform: uppercase; color: #6c757d; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Run {{.Summary.RunID}}</h1>
            <div class="meta">Project {{.Summary.ProjectID}} | Load test {{.Summary.LoadTestID}}</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Elapsed: {{formatDuration .Summary.Elapsed}}</div>
        </header>
        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Outcome</h3>
                    <div class="value {{outcomeClass .Summary.Outcome}}">{{.Summary.Outcome}}</div>
                </div>
                <div class="card">
                    <h3>Correlation ID</h3>
                    <div class="value">{{if .Summary.CorrelationID}}{{.Summary.CorrelationID}}{{else}}-{{end}}</div>
                </div>
                <div class="card">
                    <h3>API Calls</h3>
                    <div class="value">{{.Summary.Calls.Overall.Total}}</div>
                </div>
                <div class="card">
                    <h3>Failed Calls</h3>
                    <div class="value">{{.Summary.Calls.Overall.Failures}}</div>
                </div>
            </div>

            {{if .Events}}
            <section>
                <h2>Notifications</h2>
                <table>
                    <thead><tr><th>Time</th><th>Event</th><th>Tags</th><th>Reason</th></tr></thead>
                    <tbody>
                        {{range .Events}}
                        <tr>
                            <td>{{formatTime .Time}}</td>
                            <td><strong>{{.Kind}}</strong></td>
                            <td>{{range $k, $v := .Tags}}{{$k}}={{$v}} {{end}}</td>
                            <td>{{.Reason}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </section>
            {{end}}

            {{if .OperationNames}}
            <section>
                <h2>Operations</h2>
                <table>
                    <thead><tr><th>Operation</th><th>Calls</th><th>Failures</th><th>Mean</th><th>P99</th></tr></thead>
                    <tbody>
                        {{range .OperationNames}}
                        {{$op := index $.Summary.Calls.Operations .}}
                        <tr>
                            <td><strong>{{.}}</strong></td>
                            <td>{{$op.Total}}</td>
                            <td>{{$op.Failures}} ({{formatPercent $op.Failures $op.Total}}%)</td>
                            <td>{{formatDuration $op.MeanLatency}}</td>
                            <td>{{formatDuration $op.P99Latency}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </section>
            {{end}}

            {{if .Summary.Calls.Statuses}}
            <section>
                <h2>Status Buckets</h2>
                <table>
                    <thead><tr><th>Operation</th><th>Status</th><th>Count</th></tr></thead>
                    <tbody>
                        {{range .Summary.Calls.Statuses}}
                        <tr><td>{{.Operation}}</td><td>{{.Code}}</td><td>{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </section>
            {{end}}
        </div>
    </div>
</body>
</html>
`
