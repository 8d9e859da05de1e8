package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
)

func plexServer(t *testing.T) []byte {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `{"MediaContainer":{"friendlyName":"Den","version":"1.41.0","machineIdentifier":"abc123"}}`)
		case "/status/sessions":
			fmt.Fprint(w, `{"MediaContainer":{"size":2,"Metadata":[
				{"title":"Pilot","grandparentTitle":"Some Show","type":"episode",
				 "duration":3600000,"viewOffset":1800000,
				 "User":{"title":"alice"},"Player":{"product":"Plex Web","state":"playing"}},
				{"title":"A Movie","type":"movie"}
			]}}`)
		case "/library/sections":
			fmt.Fprint(w, `{"MediaContainer":{"Directory":[
				{"key":"1","title":"Movies","type":"movie"},
				{"key":"2","title":"TV","type":"show"}
			]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	raw, err := json.Marshal(configstore.PlexConfig{Host: u.Hostname(), Port: port, Token: "tok"})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return raw
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	raw := plexServer(t)
	conn := New(0)
	result := conn.TestConnection(context.Background(), raw)
	if !result.Success {
		t.Fatalf("TestConnection failed: %s", result.Message)
	}
	if result.Message != "Connected to Den" {
		t.Fatalf("Message = %q", result.Message)
	}
	if result.Details["libraries"] != 2 {
		t.Fatalf("libraries = %v", result.Details["libraries"])
	}
}

func TestTestConnectionMissingToken(t *testing.T) {
	t.Parallel()

	conn := New(0)
	raw, _ := json.Marshal(configstore.PlexConfig{Host: "plex.local"})
	result := conn.TestConnection(context.Background(), raw)
	if result.Success || result.Message != "Plex token is required" {
		t.Fatalf("result = %+v", result)
	}
}

func TestFetchNowPlaying(t *testing.T) {
	t.Parallel()

	raw := plexServer(t)
	conn := New(0)
	out, err := conn.FetchMetric(context.Background(), raw, MetricNowPlaying)
	if err != nil {
		t.Fatalf("FetchMetric(now-playing) error = %v", err)
	}
	items := out.([]NowPlayingItem)
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].User != "alice" || items[0].ProgressPct != 50 {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].User != registry.UnknownName || items[1].State != registry.UnknownName {
		t.Fatalf("items[1] without session detail = %+v", items[1])
	}
}

func TestFetchNowPlayingIdle(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
	}))
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	raw, _ := json.Marshal(configstore.PlexConfig{Host: u.Hostname(), Port: port, Token: "tok"})

	conn := New(0)
	out, err := conn.FetchMetric(context.Background(), raw, MetricNowPlaying)
	if err != nil {
		t.Fatalf("FetchMetric(now-playing) error = %v", err)
	}
	if items := out.([]NowPlayingItem); len(items) != 0 {
		t.Fatalf("items = %+v, want empty", items)
	}
}

func TestPinClientRoundTrip(t *testing.T) {
	t.Parallel()

	linked := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Client-Identifier") != "client-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/pins":
			fmt.Fprint(w, `{"id":42,"code":"WXYZ","expiresIn":900,"authToken":null}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v2/pins/42":
			if linked {
				fmt.Fprint(w, `{"id":42,"code":"WXYZ","expiresIn":800,"authToken":"secret-token"}`)
			} else {
				fmt.Fprint(w, `{"id":42,"code":"WXYZ","expiresIn":850,"authToken":null}`)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	pc := NewPinClient("client-1", 0)
	pc.BaseURL = ts.URL

	pin, err := pc.RequestPin(context.Background())
	if err != nil {
		t.Fatalf("RequestPin() error = %v", err)
	}
	if pin.ID != 42 || pin.Code != "WXYZ" || pin.ExpiresIn != 900 {
		t.Fatalf("pin = %+v", pin)
	}
	if pin.AuthToken != "" {
		t.Fatalf("AuthToken = %q before approval", pin.AuthToken)
	}

	pin, err = pc.CheckPin(context.Background(), pin.ID)
	if err != nil {
		t.Fatalf("CheckPin() error = %v", err)
	}
	if pin.AuthToken != "" {
		t.Fatal("pending pin should have no token")
	}

	linked = true
	pin, err = pc.CheckPin(context.Background(), pin.ID)
	if err != nil {
		t.Fatalf("CheckPin() after approval error = %v", err)
	}
	if pin.AuthToken != "secret-token" {
		t.Fatalf("AuthToken = %q", pin.AuthToken)
	}
}
