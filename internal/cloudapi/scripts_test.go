package cloudapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/torosent/lrcctl/internal/cloudapi"
	"github.com/torosent/lrcctl/internal/cloudapi/cloudapitest"
)

var testAttrs = []cloudapi.Attribute{{Name: "testRunId", Value: "run-1", Description: "correlation id"}}

func TestSetScriptAttributes(t *testing.T) {
	srv := cloudapitest.NewServer()
	defer srv.Close()
	client := newSession(t, srv)

	stored, err := client.SetScriptAttributes(context.Background(), "1", "2", 7, testAttrs)
	if err != nil {
		t.Fatalf("SetScriptAttributes error = %v", err)
	}
	if len(stored) != 1 || stored[0] != testAttrs[0] {
		t.Fatalf("unexpected stored attributes %+v", stored)
	}
	req := srv.Requests()[1]
	if req.Method != http.MethodPut || req.Path != "/projects/1/load-tests/2/scripts/7/rts/additional-attributes" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if got := srv.Attributes(7); len(got) != 1 || got[0].Value != "run-1" {
		t.Fatalf("attributes not applied: %+v", got)
	}
}

func TestBroadcastAttributesAppliesToEveryScript(t *testing.T) {
	srv := cloudapitest.NewServer()
	defer srv.Close()
	srv.SetScripts(
		cloudapi.ScriptRef{ID: 1, Name: "login"},
		cloudapi.ScriptRef{ID: 2, Name: "browse"},
		cloudapi.ScriptRef{ID: 3, Name: "checkout"},
	)
	client := newSession(t, srv)

	if err := client.BroadcastAttributes(context.Background(), "1", "2", testAttrs); err != nil {
		t.Fatalf("BroadcastAttributes error = %v", err)
	}
	for _, id := range []int64{1, 2, 3} {
		if len(srv.Attributes(id)) != 1 {
			t.Fatalf("script %d did not receive attributes", id)
		}
	}
}

func TestBroadcastAttributesStopsAtFirstFailure(t *testing.T) {
	srv := cloudapitest.NewServer()
	defer srv.Close()
	srv.SetScripts(
		cloudapi.ScriptRef{ID: 1, Name: "first"},
		cloudapi.ScriptRef{ID: 2, Name: "second"},
		cloudapi.ScriptRef{ID: 3, Name: "third"},
	)
	srv.FailOn(cloudapitest.AttributesRoute(2), http.StatusInternalServerError)
	client := newSession(t, srv)

	err := client.BroadcastAttributes(context.Background(), "1", "2", testAttrs)
	var rce *cloudapi.RemoteCallError
	if !errors.As(err, &rce) || rce.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected RemoteCallError 500, got %v", err)
	}

	if calls := srv.Calls(cloudapitest.AttributesRoute(1)); calls != 1 {
		t.Fatalf("expected first script updated once, got %d", calls)
	}
	if len(srv.Attributes(1)) != 1 {
		t.Fatalf("expected first script update to stay applied")
	}
	if calls := srv.Calls(cloudapitest.AttributesRoute(2)); calls != 1 {
		t.Fatalf("expected one attempt on second script, got %d", calls)
	}
	if calls := srv.Calls(cloudapitest.AttributesRoute(3)); calls != 0 {
		t.Fatalf("expected no call for third script, got %d", calls)
	}
	if calls := srv.Calls(cloudapitest.RouteAttributes); calls != 2 {
		t.Fatalf("expected two attribute calls in total, got %d", calls)
	}
}

func TestBroadcastAttributesListFailure(t *testing.T) {
	srv := cloudapitest.NewServer()
	defer srv.Close()
	srv.FailOn(cloudapitest.RouteScripts, http.StatusForbidden)
	client := newSession(t, srv)

	err := client.BroadcastAttributes(context.Background(), "1", "2", testAttrs)
	if !cloudapi.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("expected 403 from script listing, got %v", err)
	}
	if srv.Calls(cloudapitest.RouteAttributes) != 0 {
		t.Fatalf("expected no attribute updates")
	}
}

func TestBroadcastAttributesNoScripts(t *testing.T) {
	srv := cloudapitest.NewServer()
	defer srv.Close()
	client := newSession(t, srv)

	if err := client.BroadcastAttributes(context.Background(), "1", "2", testAttrs); err != nil {
		t.Fatalf("expected no error for a load test without scripts, got %v", err)
	}
}
