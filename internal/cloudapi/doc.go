// Package cloudapi is a session-authenticated client for the load test
// control plane API.
//
// A Client owns one base URL and one session. InitSession exchanges
// credentials for a token and installs it as the LWSSO_COOKIE_KEY cookie
// scoped to the host of the base URL; every later call goes through
// ExecuteAuthenticated, which adds the TENANTID query parameter and treats
// any status outside 200-299 as a RemoteCallError. The client never retries:
// retry policy belongs to callers such as the orchestrator's poller.
//
// InitSession must happen before the client is shared with other goroutines.
// After that the session is only read, so one Client may serve a foreground
// caller and a background poller at the same time.
package cloudapi
