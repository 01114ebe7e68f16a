package cloudapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// StartRun starts the load test immediately and returns the handle of the new run.
func (c *Client) StartRun(ctx context.Context, projectID, loadTestID string) (RunHandle, error) {
	if err := notEmpty("projectId", projectID); err != nil {
		return RunHandle{}, err
	}
	if err := notEmpty("loadTestId", loadTestID); err != nil {
		return RunHandle{}, err
	}

	const op = "StartRun"
	path := fmt.Sprintf("/projects/%s/load-tests/%s/runs", url.PathEscape(projectID), url.PathEscape(loadTestID))
	data, err := c.execute(ctx, op, http.MethodPost, path, nil, nil)
	if err != nil {
		return RunHandle{}, err
	}
	result, err := parseRunResult(op, data)
	if err != nil {
		return RunHandle{}, err
	}
	return RunHandle{ProjectID: projectID, LoadTestID: loadTestID, RunID: result.RunID}, nil
}

// StopRun asks the control plane to stop a run.
func (c *Client) StopRun(ctx context.Context, runID int64) (RunResult, error) {
	const op = "StopRun"
	path := "/test-runs/" + strconv.FormatInt(runID, 10)
	data, err := c.execute(ctx, op, http.MethodPut, path, url.Values{"action": []string{"STOP"}}, nil)
	if err != nil {
		return RunResult{}, err
	}
	if isEmptyBody(data) {
		return RunResult{RunID: runID}, nil
	}
	result, err := parseRunResult(op, data)
	if err != nil {
		return RunResult{}, err
	}
	if result.RunID == 0 {
		result.RunID = runID
	}
	return result, nil
}

// ListActiveRuns returns the runs currently active in a project.
func (c *Client) ListActiveRuns(ctx context.Context, projectID string) ([]ActiveRun, error) {
	if err := notEmpty("projectId", projectID); err != nil {
		return nil, err
	}

	const op = "ListActiveRuns"
	data, err := c.execute(ctx, op, http.MethodGet, "/test-runs/active", url.Values{"projectIds": []string{projectID}}, nil)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(data) {
		return nil, nil
	}
	var runs []ActiveRun
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, decodeError(op, data, err)
	}
	return runs, nil
}

// CreateSchedule schedules the load test to start at startAt. A zero startAt
// means one minute from now.
func (c *Client) CreateSchedule(ctx context.Context, projectID, loadTestID string, startAt time.Time) (ScheduleReply, error) {
	if err := notEmpty("projectId", projectID); err != nil {
		return ScheduleReply{}, err
	}
	if err := notEmpty("loadTestId", loadTestID); err != nil {
		return ScheduleReply{}, err
	}
	if startAt.IsZero() {
		startAt = time.Now().Add(time.Minute)
	}

	const op = "CreateSchedule"
	path := fmt.Sprintf("/projects/%s/load-tests/%s/schedules", url.PathEscape(projectID), url.PathEscape(loadTestID))
	data, err := c.execute(ctx, op, http.MethodPost, path, nil, Schedule{StartAt: startAt})
	if err != nil {
		return ScheduleReply{}, err
	}
	var reply ScheduleReply
	if isEmptyBody(data) {
		return reply, nil
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return ScheduleReply{}, decodeError(op, data, err)
	}
	return reply, nil
}

// parseRunResult accepts runId as a JSON number or a numeric string.
func parseRunResult(op string, data []byte) (RunResult, error) {
	if !gjson.ValidBytes(data) {
		return RunResult{}, decodeError(op, data, fmt.Errorf("invalid JSON"))
	}
	doc := gjson.ParseBytes(data)
	if !doc.Get("runId").Exists() {
		return RunResult{}, decodeError(op, data, fmt.Errorf("%w %q", errMissingField, "runId"))
	}
	runID, err := idField(doc, "runId")
	if err != nil {
		return RunResult{}, decodeError(op, data, err)
	}
	return RunResult{RunID: runID, Status: doc.Get("status").String()}, nil
}
