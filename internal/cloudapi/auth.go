package cloudapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// InitSession exchanges credentials for a session token and installs it as
// the session cookie for the base URL host. Calling it again re-authenticates
// and the newer token replaces the older one.
//
// InitSession must complete before the client is used from other goroutines.
func (c *Client) InitSession(ctx context.Context, user, password, tenantID string) error {
	if err := notEmpty("user", user); err != nil {
		return err
	}
	if password == "" {
		return &ValidationError{Field: "password"}
	}
	if err := notEmpty("tenantId", tenantID); err != nil {
		return err
	}

	const op = "InitSession"
	query := url.Values{TenantParam: []string{tenantID}}
	data, status, err := c.do(ctx, op, http.MethodPost, "/auth", query, authRequest{User: user, Password: password})
	if err != nil {
		return err
	}

	token := gjson.GetBytes(data, "token")
	if !token.Exists() || token.String() == "" {
		return &RemoteCallError{Op: op, StatusCode: status, Body: string(data), Err: fmt.Errorf("%w %q", errMissingField, "token")}
	}

	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   CookieName,
		Value:  token.String(),
		Domain: c.host,
		Path:   "/",
	}})
	c.session.Store(&Session{
		BaseURL:  c.base,
		Host:     c.host,
		TenantID: tenantID,
		Token:    token.String(),
	})
	c.logger.Debug("session initialised", "host", c.host, "tenant", tenantID)
	return nil
}
