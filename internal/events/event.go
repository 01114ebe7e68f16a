// Package events carries run notifications to the sinks that follow a test:
// the console, webhooks and websocket pub/sub endpoints.
package events

import (
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the message type of a notification.
type Kind string

const (
	// KindRunStarted is published once the control plane accepted the run.
	KindRunStarted Kind = "run started"
	// KindGo is the terminal notification of a run that reached RUNNING.
	KindGo Kind = "Go!"
	// KindStop is the terminal notification of a run that did not.
	KindStop Kind = "Stop!"
)

// Terminal reports whether k ends the polling phase.
func (k Kind) Terminal() bool {
	return k == KindGo || k == KindStop
}

// Tag keys of a run started notification.
const (
	TagTenantID  = "tenantId"
	TagProjectID = "projectId"
	TagRunID     = "runId"
)

// Event is one notification.
type Event struct {
	ID     string            `json:"id"`
	Kind   Kind              `json:"kind"`
	Time   time.Time         `json:"time"`
	Tags   map[string]string `json:"tags,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// New builds an event with a fresh ULID and the current UTC time.
func New(kind Kind, tags map[string]string) Event {
	return Event{
		ID:   ulid.Make().String(),
		Kind: kind,
		Time: time.Now().UTC(),
		Tags: tags,
	}
}

// RunStarted announces a run the control plane accepted.
func RunStarted(tenantID, projectID string, runID int64) Event {
	return New(KindRunStarted, map[string]string{
		TagTenantID:  tenantID,
		TagProjectID: projectID,
		TagRunID:     strconv.FormatInt(runID, 10),
	})
}

// Go announces that the run reached RUNNING.
func Go(runID int64) Event {
	return New(KindGo, map[string]string{TagRunID: strconv.FormatInt(runID, 10)})
}

// Stop announces that polling ended without RUNNING, with the reason why.
func Stop(runID int64, reason string) Event {
	e := New(KindStop, map[string]string{TagRunID: strconv.FormatInt(runID, 10)})
	e.Reason = reason
	return e
}
