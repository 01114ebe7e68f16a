package cloudapitest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/torosent/lrcctl/internal/cloudapi"
)

// admit records the request and applies redirect and failure injection.
// It returns false when the response has already been written.
func (f *Fake) admit(w http.ResponseWriter, r *http.Request, route string) ([]byte, bool) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	if f.redirects[route] && r.URL.Query().Get("redirected") == "" {
		delete(f.redirects, route)
		f.mu.Unlock()
		target := *r.URL
		q := target.Query()
		q.Set("redirected", "1")
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.RequestURI(), http.StatusTemporaryRedirect)
		return nil, false
	}

	cookie := ""
	if c, err := r.Cookie(cloudapi.CookieName); err == nil {
		cookie = c.Value
	}
	counted := route
	if route == RouteAttributes {
		if id, err := strconv.ParseInt(r.PathValue("script"), 10, 64); err == nil {
			counted = AttributesRoute(id)
		}
	}
	f.calls[route]++
	if counted != route {
		f.calls[counted]++
	}
	f.requests = append(f.requests, Request{
		Route:    counted,
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Cookie:   cookie,
		Body:     body,
	})

	fail := f.failures[counted]
	if fail == nil {
		fail = f.failures[route]
	}
	if fail != nil && fail.remaining != 0 {
		if fail.remaining > 0 {
			fail.remaining--
		}
		status := fail.status
		f.mu.Unlock()
		writeError(w, status, "injected failure")
		return nil, false
	}

	tenant := f.tenantID
	token := f.current
	f.mu.Unlock()

	if r.URL.Query().Get(cloudapi.TenantParam) != tenant {
		writeError(w, http.StatusBadRequest, "unknown tenant")
		return nil, false
	}
	if route != RouteAuth && (cookie == "" || cookie != token) {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return body, true
}

func (f *Fake) authenticated(route string, next func(http.ResponseWriter, *http.Request, []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.admit(w, r, route)
		if !ok {
			return
		}
		next(w, r, body)
	}
}

func (f *Fake) handleAuth(w http.ResponseWriter, r *http.Request) {
	body, ok := f.admit(w, r, RouteAuth)
	if !ok {
		return
	}
	var creds struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &creds); err != nil || creds.User == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "user and password are required")
		return
	}

	f.mu.Lock()
	if f.user != "" && (creds.User != f.user || creds.Password != f.password) {
		f.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := "token"
	if len(f.tokens) > 0 {
		idx := f.issued
		if idx >= len(f.tokens) {
			idx = len(f.tokens) - 1
		}
		token = f.tokens[idx]
	}
	f.issued++
	f.current = token
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (f *Fake) handleStart(w http.ResponseWriter, r *http.Request, _ []byte) {
	f.mu.Lock()
	runID := f.runID
	f.polls = 0
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"runId": runID, "status": string(cloudapi.StatusInitializing)})
}

func (f *Fake) handleStop(w http.ResponseWriter, r *http.Request, _ []byte) {
	if r.URL.Query().Get("action") != "STOP" {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("run"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	f.mu.Lock()
	f.stopped = append(f.stopped, runID)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"runId": runID, "status": string(cloudapi.StatusStopping)})
}

func (f *Fake) handleActive(w http.ResponseWriter, r *http.Request, _ []byte) {
	f.mu.Lock()
	delay := f.pollDelay
	status := cloudapi.RunStatus("")
	if len(f.statuses) > 0 {
		idx := f.polls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		status = f.statuses[idx]
	}
	f.polls++
	runID, testID, testName := f.runID, f.testID, f.testName
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	runs := []cloudapi.ActiveRun{
		{RunID: runID + 1000, TestID: testID + 1, TestName: "other", Status: cloudapi.StatusRunning},
	}
	if status != "" {
		runs = append(runs, cloudapi.ActiveRun{RunID: runID, TestID: testID, TestName: testName, Status: status})
	}
	writeJSON(w, http.StatusOK, runs)
}

func (f *Fake) handleScripts(w http.ResponseWriter, r *http.Request, _ []byte) {
	f.mu.Lock()
	scripts := append([]cloudapi.ScriptRef{}, f.scripts...)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, scripts)
}

func (f *Fake) handleAttributes(w http.ResponseWriter, r *http.Request, body []byte) {
	scriptID, err := strconv.ParseInt(r.PathValue("script"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown script")
		return
	}
	var attrs []cloudapi.Attribute
	if err := json.Unmarshal(body, &attrs); err != nil {
		writeError(w, http.StatusBadRequest, "attributes must be a JSON array")
		return
	}
	f.mu.Lock()
	f.attributes[scriptID] = attrs
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, attrs)
}

func (f *Fake) handleSchedule(w http.ResponseWriter, r *http.Request, body []byte) {
	var schedule struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &schedule); err != nil || schedule.Timestamp == "" {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}
	if _, err := time.Parse(time.RFC3339, schedule.Timestamp); err != nil {
		writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
		return
	}
	f.mu.Lock()
	f.schedules = append(f.schedules, schedule.Timestamp)
	id := int64(len(f.schedules))
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int64{"scheduleId": id})
}
