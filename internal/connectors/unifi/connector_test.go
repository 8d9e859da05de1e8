package unifi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
)

// fakeController emulates the controller's login handshake: a cookie plus a
// CSRF token on login, both required on every data request.
type fakeController struct {
	logins    atomic.Int64
	dataCalls atomic.Int64
	password  string
}

func (f *fakeController) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			f.logins.Add(1)
			var creds map[string]string
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds["password"] != f.password {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "session-" + strconv.FormatInt(f.logins.Load(), 10)})
			w.Header().Set("X-Csrf-Token", "csrf-token")
			fmt.Fprint(w, `{}`)
		case "/proxy/network/api/s/default/stat/sta":
			f.dataCalls.Add(1)
			if !f.authed(r) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"data":[
				{"name":"nas","ip":"10.0.0.2","mac":"aa:bb","is_wired":true},
				{"hostname":"phone","ip":"10.0.0.3","mac":"cc:dd","is_wired":false,"signal":-52},
				{"ip":"10.0.0.4","mac":"ee:ff","is_wired":false}
			]}`)
		case "/proxy/network/api/s/default/stat/health":
			f.dataCalls.Add(1)
			if !f.authed(r) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"data":[
				{"subsystem":"wan","status":"ok"},
				{"subsystem":"wlan","status":"ok","num_user":12}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeController) authed(r *http.Request) bool {
	cookie, err := r.Cookie("TOKEN")
	return err == nil && cookie.Value != "" && r.Header.Get("X-Csrf-Token") == "csrf-token"
}

func controllerConfig(t *testing.T, ts *httptest.Server, username, password string) configstore.UniFiConfig {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return configstore.UniFiConfig{
		Host:          u.Hostname(),
		Port:          port,
		Username:      username,
		Password:      password,
		TLSSkipVerify: true,
	}
}

func TestClientReusesSession(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	store := session.NewMemoryStore()
	client := NewClient(controllerConfig(t, ts, "admin", "pw"), store, 0)

	summary, err := client.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if summary.Total != 3 || summary.Wired != 1 || summary.Wireless != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Clients[2].Name != registry.UnknownName {
		t.Fatalf("nameless client = %q, want default", summary.Clients[2].Name)
	}

	if _, err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got := ctrl.logins.Load(); got != 1 {
		t.Fatalf("logins = %d, want 1 (session should be reused)", got)
	}
}

func TestConcurrentFirstUseLeavesOneSession(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	// Two requests race the first login against an empty session store.
	// Both must succeed; a lost race costs at most one extra login.
	store := session.NewMemoryStore()
	cfg := controllerConfig(t, ts, "admin", "pw")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = NewClient(cfg, store, 0).ListClients(context.Background())
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("ListClients() #%d error = %v", i, err)
		}
	}
	if got := ctrl.logins.Load(); got < 1 || got > 2 {
		t.Fatalf("logins = %d, want 1 or 2", got)
	}

	// Whatever won the race left a usable session behind.
	before := ctrl.logins.Load()
	if _, err := NewClient(cfg, store, 0).Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got := ctrl.logins.Load(); got != before {
		t.Fatalf("logins = %d, want %d (stored session should be reused)", got, before)
	}
}

func TestClientReloginsAfterExpiry(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	now := time.Now()
	store := session.NewMemoryStore()
	store.Now = func() time.Time { return now }
	client := NewClient(controllerConfig(t, ts, "admin", "pw"), store, 0)
	client.now = func() time.Time { return now }

	if _, err := client.ListClients(context.Background()); err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if got := ctrl.logins.Load(); got != 1 {
		t.Fatalf("logins = %d, want 1", got)
	}

	now = now.Add(sessionTTL + time.Minute)
	if _, err := client.ListClients(context.Background()); err != nil {
		t.Fatalf("ListClients() after expiry error = %v", err)
	}
	if got := ctrl.logins.Load(); got != 2 {
		t.Fatalf("logins = %d, want 2 (session aged out)", got)
	}
}

func TestClientRetriesOnRejectedSession(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	store := session.NewMemoryStore()
	cfg := controllerConfig(t, ts, "admin", "pw")
	client := NewClient(cfg, store, 0)

	// Plant a session the controller will reject.
	store.Put(client.sessionKey(), session.Session{
		Cookies:   []*http.Cookie{{Name: "TOKEN", Value: ""}},
		CSRFToken: "stale",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	if _, err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got := ctrl.logins.Load(); got != 1 {
		t.Fatalf("logins = %d, want 1 (rejected session triggers re-login)", got)
	}
}

func TestSessionKeysIsolatePerUser(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	store := session.NewMemoryStore()
	alice := NewClient(controllerConfig(t, ts, "alice", "pw"), store, 0)
	bob := NewClient(controllerConfig(t, ts, "bob", "pw"), store, 0)

	if _, err := alice.Health(context.Background()); err != nil {
		t.Fatalf("alice Health() error = %v", err)
	}
	if _, err := bob.Health(context.Background()); err != nil {
		t.Fatalf("bob Health() error = %v", err)
	}
	if got := ctrl.logins.Load(); got != 2 {
		t.Fatalf("logins = %d, want 2 (one per user)", got)
	}
}

func TestTestConnectionForcesFreshLogin(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	store := session.NewMemoryStore()
	cfg := controllerConfig(t, ts, "admin", "pw")
	client := NewClient(cfg, store, 0)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("seed Login() error = %v", err)
	}

	conn := New(store, 0)
	raw, _ := json.Marshal(cfg)
	result := conn.TestConnection(context.Background(), raw)
	if !result.Success {
		t.Fatalf("TestConnection failed: %s", result.Message)
	}
	if got := ctrl.logins.Load(); got != 2 {
		t.Fatalf("logins = %d, want 2 (test path must not trust the cache)", got)
	}
	if result.Details["wan_status"] != "ok" {
		t.Fatalf("wan_status = %v", result.Details["wan_status"])
	}
}

func TestTestConnectionBadCredentials(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{password: "pw"}
	ts := httptest.NewTLSServer(ctrl.handler())
	defer ts.Close()

	conn := New(session.NewMemoryStore(), 0)
	raw, _ := json.Marshal(controllerConfig(t, ts, "admin", "wrong"))
	result := conn.TestConnection(context.Background(), raw)
	if result.Success {
		t.Fatal("expected failure for bad credentials")
	}
	if result.Message != "authentication failed: credentials were rejected by the server" {
		t.Fatalf("Message = %q", result.Message)
	}
}

func TestTestConnectionMissingPassword(t *testing.T) {
	t.Parallel()

	conn := New(session.NewMemoryStore(), 0)
	raw, _ := json.Marshal(configstore.UniFiConfig{Host: "gw.local", Username: "admin"})
	result := conn.TestConnection(context.Background(), raw)
	if result.Success || result.Message != "Password is required" {
		t.Fatalf("result = %+v", result)
	}
}
