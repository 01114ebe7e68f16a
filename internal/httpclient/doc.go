// Package httpclient builds the HTTP transport used to talk to the load test
// control API.
//
// The transport enforces finite timeouts on every phase of a call:
//   - ConnectTimeout bounds the TCP dial (and therefore the proxy hop)
//   - ReadTimeout bounds the wait for response headers
//   - RequestTimeout bounds the whole exchange, including redirects
//
// Redirects are followed for every verb. 301/302/303 follow Go's rules for
// method rewriting; 307/308 replay the original method and body, which is
// why requests should be built with [NewRequest] and a [BodySource].
//
//	client := httpclient.NewClient(httpclient.Options{
//		ConnectTimeout: time.Second,
//		ReadTimeout:    5 * time.Second,
//		Jar:            jar,
//	})
//	body, _ := httpclient.JSONBody(payload)
//	req, err := httpclient.NewRequest(ctx, http.MethodPost, target, body)
//
// An optional outbound proxy is configured with [ProxyURL]; it only changes
// the route, so cookies and authentication behave the same with or without it.
package httpclient
