// Package cloudapitest provides an in-process fake of the load test control
// plane for tests and local development.
package cloudapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/torosent/lrcctl/internal/cloudapi"
)

// Route names used for call counting and failure injection. Attribute
// updates are counted per script as "attributes/<script id>".
const (
	RouteAuth       = "auth"
	RouteStart      = "start"
	RouteStop       = "stop"
	RouteScripts    = "scripts"
	RouteAttributes = "attributes"
	RouteActive     = "active"
	RouteSchedule   = "schedule"
)

// AttributesRoute returns the route name of one script's attribute update.
func AttributesRoute(scriptID int64) string {
	return RouteAttributes + "/" + strconv.FormatInt(scriptID, 10)
}

// Request is a request the fake accepted, kept for assertions.
type Request struct {
	Route    string
	Method   string
	Path     string
	RawQuery string
	Cookie   string
	Body     []byte
}

type failure struct {
	status    int
	remaining int // <0 means every call
}

// Fake is an http.Handler serving the control plane routes.
type Fake struct {
	mu sync.Mutex

	tenantID string
	user     string
	password string
	tokens   []string
	issued   int
	current  string

	runID      int64
	testID     int64
	testName   string
	statuses   []cloudapi.RunStatus
	polls      int
	scripts    []cloudapi.ScriptRef
	attributes map[int64][]cloudapi.Attribute
	schedules  []string
	stopped    []int64

	calls     map[string]int
	failures  map[string]*failure
	redirects map[string]bool
	requests  []Request
	pollDelay time.Duration

	mux *http.ServeMux
}

// New returns a Fake that accepts any non-empty credentials for tenant
// "123", issues token "8457258394" and starts run 42 of load test 2.
func New() *Fake {
	f := &Fake{
		tenantID:   "123",
		tokens:     []string{"8457258394"},
		runID:      42,
		testID:     2,
		testName:   "checkout",
		attributes: make(map[int64][]cloudapi.Attribute),
		calls:      make(map[string]int),
		failures:   make(map[string]*failure),
		redirects:  make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", f.handleAuth)
	mux.HandleFunc("POST /projects/{project}/load-tests/{test}/runs", f.authenticated(RouteStart, f.handleStart))
	mux.HandleFunc("PUT /test-runs/{run}", f.authenticated(RouteStop, f.handleStop))
	mux.HandleFunc("GET /test-runs/active", f.authenticated(RouteActive, f.handleActive))
	mux.HandleFunc("GET /projects/{project}/load-tests/{test}/scripts", f.authenticated(RouteScripts, f.handleScripts))
	mux.HandleFunc("PUT /projects/{project}/load-tests/{test}/scripts/{script}/rts/additional-attributes", f.authenticated(RouteAttributes, f.handleAttributes))
	mux.HandleFunc("POST /projects/{project}/load-tests/{test}/schedules", f.authenticated(RouteSchedule, f.handleSchedule))
	f.mux = mux
	return f
}

func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

// SetTenant changes the accepted tenant id.
func (f *Fake) SetTenant(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenantID = id
}

// SetCredentials restricts authentication to one user and password.
func (f *Fake) SetCredentials(user, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user, f.password = user, password
}

// SetTokens sets the tokens handed out by successive authentications. The
// last token repeats once the list is exhausted.
func (f *Fake) SetTokens(tokens ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append([]string(nil), tokens...)
	f.issued = 0
}

// SetRun sets the id assigned to the next started run.
func (f *Fake) SetRun(runID, testID int64, testName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runID, f.testID, f.testName = runID, testID, testName
}

// SetActiveStatuses scripts the status reported for the started run on
// successive polls; the last status repeats. An empty status leaves the run
// out of the listing for that poll.
func (f *Fake) SetActiveStatuses(statuses ...cloudapi.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append([]cloudapi.RunStatus(nil), statuses...)
	f.polls = 0
}

// SetScripts sets the scripts of every load test.
func (f *Fake) SetScripts(scripts ...cloudapi.ScriptRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append([]cloudapi.ScriptRef(nil), scripts...)
}

// SetPollDelay delays every active runs reply.
func (f *Fake) SetPollDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollDelay = d
}

// FailOn makes every call of route answer with status.
func (f *Fake) FailOn(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = &failure{status: status, remaining: -1}
}

// FailFirst makes the next n calls of route answer with status.
func (f *Fake) FailFirst(route string, n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = &failure{status: status, remaining: n}
}

// RedirectOnce answers the first call of route with a 307 to the same URL.
func (f *Fake) RedirectOnce(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects[route] = true
}

// Calls returns how many requests reached route, failed ones included.
func (f *Fake) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls returns the number of requests served on any route.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the accepted requests in arrival order.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Attributes returns the attributes last stored for a script.
func (f *Fake) Attributes(scriptID int64) []cloudapi.Attribute {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cloudapi.Attribute(nil), f.attributes[scriptID]...)
}

// Stopped returns the run ids stop was requested for.
func (f *Fake) Stopped() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.stopped...)
}

// Schedules returns the timestamps of created schedules.
func (f *Fake) Schedules() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.schedules...)
}

// Server is a Fake listening on a local httptest server.
type Server struct {
	*Fake
	*httptest.Server
}

// NewServer starts a Fake on a loopback port. Callers must Close it.
func NewServer() *Server {
	f := New()
	return &Server{Fake: f, Server: httptest.NewServer(f)}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
