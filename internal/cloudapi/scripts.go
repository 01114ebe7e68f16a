package cloudapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func scriptsPath(projectID, loadTestID string) string {
	return fmt.Sprintf("/projects/%s/load-tests/%s/scripts", url.PathEscape(projectID), url.PathEscape(loadTestID))
}

// ListScripts returns the scripts assigned to a load test.
func (c *Client) ListScripts(ctx context.Context, projectID, loadTestID string) ([]ScriptRef, error) {
	if err := notEmpty("projectId", projectID); err != nil {
		return nil, err
	}
	if err := notEmpty("loadTestId", loadTestID); err != nil {
		return nil, err
	}

	const op = "ListScripts"
	data, err := c.execute(ctx, op, http.MethodGet, scriptsPath(projectID, loadTestID), nil, nil)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(data) {
		return nil, nil
	}
	var scripts []ScriptRef
	if err := json.Unmarshal(data, &scripts); err != nil {
		return nil, decodeError(op, data, err)
	}
	return scripts, nil
}

// SetScriptAttributes replaces the additional runtime attributes of one
// script and returns the attributes the control plane stored.
func (c *Client) SetScriptAttributes(ctx context.Context, projectID, loadTestID string, scriptID int64, attrs []Attribute) ([]Attribute, error) {
	if err := notEmpty("projectId", projectID); err != nil {
		return nil, err
	}
	if err := notEmpty("loadTestId", loadTestID); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = []Attribute{}
	}

	const op = "SetScriptAttributes"
	path := scriptsPath(projectID, loadTestID) + "/" + strconv.FormatInt(scriptID, 10) + "/rts/additional-attributes"
	data, err := c.execute(ctx, op, http.MethodPut, path, nil, attrs)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(data) {
		return nil, nil
	}
	var stored []Attribute
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, decodeError(op, data, err)
	}
	return stored, nil
}

// BroadcastAttributes applies attrs to every script of the load test, one
// script at a time. The first failure is returned immediately and the
// remaining scripts are left untouched; updates already applied stay applied.
func (c *Client) BroadcastAttributes(ctx context.Context, projectID, loadTestID string, attrs []Attribute) error {
	scripts, err := c.ListScripts(ctx, projectID, loadTestID)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if _, err := c.SetScriptAttributes(ctx, projectID, loadTestID, script.ID, attrs); err != nil {
			return fmt.Errorf("script %d (%s): %w", script.ID, script.Name, err)
		}
		c.logger.Debug("attributes applied", "script", script.ID, "name", script.Name, "count", len(attrs))
	}
	return nil
}
