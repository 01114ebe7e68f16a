package cloudapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Session is the authenticated state installed by InitSession.
type Session struct {
	BaseURL  string
	Host     string
	TenantID string
	Token    string
}

// RunHandle identifies a run started through StartRun.
type RunHandle struct {
	ProjectID  string `json:"projectId" yaml:"project_id"`
	LoadTestID string `json:"loadTestId" yaml:"load_test_id"`
	RunID      int64  `json:"runId" yaml:"run_id"`
}

// RunResult is the run descriptor returned by start and stop calls.
type RunResult struct {
	RunID  int64  `json:"runId"`
	Status string `json:"status,omitempty"`
}

// RunStatus is the lifecycle state reported for an active run. Values the
// client does not know are kept as sent.
type RunStatus string

const (
	StatusRunning        RunStatus = "RUNNING"
	StatusInitializing   RunStatus = "INITIALIZING"
	StatusCheckingStatus RunStatus = "CHECKING_STATUS"
	StatusStopping       RunStatus = "STOPPING"
	StatusPaused         RunStatus = "PAUSED"
)

// ActiveRun is one entry of the active runs listing. It is fetched fresh on
// every poll.
type ActiveRun struct {
	RunID    int64     `json:"runId"`
	TestID   int64     `json:"testId"`
	TestName string    `json:"testName"`
	Status   RunStatus `json:"status"`
}

// UnmarshalJSON accepts runId and testId as JSON numbers or numeric strings.
func (r *ActiveRun) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return fmt.Errorf("active run: expected object, got %s", doc.Type)
	}
	runID, err := idField(doc, "runId")
	if err != nil {
		return err
	}
	testID, err := idField(doc, "testId")
	if err != nil {
		return err
	}
	*r = ActiveRun{
		RunID:    runID,
		TestID:   testID,
		TestName: doc.Get("testName").String(),
		Status:   RunStatus(doc.Get("status").String()),
	}
	return nil
}

// idField reads an integer id sent either as a number or a numeric string.
// A missing or null field reads as 0.
func idField(doc gjson.Result, name string) (int64, error) {
	v := doc.Get(name)
	switch v.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number, gjson.String:
		id, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", name, v.String(), err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%s: expected number or numeric string, got %s", name, v.Raw)
	}
}

// Phase is a ramp-up or tear-down duration in seconds.
type Phase struct {
	Duration int `json:"duration"`
}

// ScriptRef describes a script assigned to a load test.
type ScriptRef struct {
	ID                   int64  `json:"id"`
	ScriptID             int64  `json:"scriptId"`
	Name                 string `json:"name"`
	IsActive             bool   `json:"isActive"`
	VusersNum            int    `json:"vusersNum"`
	StartTime            int    `json:"startTime"`
	RampUp               *Phase `json:"rampUp,omitempty"`
	TearDown             *Phase `json:"tearDown,omitempty"`
	IsLocalRTSEnabled    bool   `json:"isLocalRtsEnabled"`
	Pacing               int    `json:"pacing"`
	IsLocalPacingEnabled bool   `json:"isLocalPacingEnabled"`
	LocationType         int    `json:"locationType"`
	Iterations           int    `json:"iterations"`
	Duration             int    `json:"duration"`
	MaxDuration          int    `json:"maxDuration"`
	Percentage           int    `json:"percentage"`
	SchedulingMode       string `json:"schedulingMode,omitempty"`
}

// Attribute is a name/value annotation attached to a script's runtime settings.
type Attribute struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// scheduleLayout is UTC with millisecond precision and a literal Z.
const scheduleLayout = "2006-01-02T15:04:05.000Z"

// Schedule asks the control plane to start a load test at a given time.
type Schedule struct {
	StartAt time.Time
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp string `json:"timestamp"`
	}{Timestamp: s.StartAt.UTC().Format(scheduleLayout)})
}

// ScheduleReply is returned by CreateSchedule.
type ScheduleReply struct {
	ScheduleID int64 `json:"scheduleId"`
}

type authRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}
