package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zlx-network/swarmd/internal/api"
	"github.com/zlx-network/swarmd/internal/daemon"
	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/signaling"
)

func TestApplyServeFlags(t *testing.T) {
	defer func() { serveHost, servePort, serveCert, serveKey, servePassphrase = "", 0, "", "", "" }()

	cfg := daemon.DefaultConfig()
	applyServeFlags(&cfg)
	if cfg.Server.Port != 8443 || cfg.TLS.CertFile != "" {
		t.Errorf("unset flags changed config: %+v", cfg)
	}

	serveHost, servePort = "127.0.0.1", 9000
	serveCert, serveKey, servePassphrase = "c.pem", "k.pem", "pw"
	applyServeFlags(&cfg)
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.TLS.CertFile != "c.pem" || cfg.TLS.KeyFile != "k.pem" || cfg.TLS.Passphrase != "pw" {
		t.Errorf("TLS = %+v", cfg.TLS)
	}
}

func TestFetchStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(api.StatusResponse{
			Status:  "running",
			Version: "v1",
			Healthy: true,
			Stats:   signaling.Stats{Sessions: 3, Domains: 1, Swarms: 2, Memberships: 4},
		})
	}))
	defer ts.Close()

	got, err := fetchStatus(ts.Client(), ts.URL+"/")
	if err != nil {
		t.Fatalf("fetchStatus() error: %v", err)
	}
	if got.Version != "v1" || got.Stats.Sessions != 3 || got.Stats.Memberships != 4 {
		t.Errorf("status = %+v", got)
	}
}

func TestFetchStatus_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	addr := ts.URL
	if _, err := fetchStatus(ts.Client(), addr); err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want HTTP 500", err)
	}
	ts.Close()

	if _, err := fetchStatus(&http.Client{Timeout: time.Second}, addr); err == nil {
		t.Error("fetchStatus() on a closed server should fail")
	}
}

func TestPrintSessions(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessions := []domain.SessionInfo{
		{
			PeerID:         "p1",
			Domain:         "abcde",
			ConnectedAt:    start,
			DisconnectedAt: start.Add(90 * time.Second),
			Cause:          domain.CauseLivenessTimeout,
			Swarms:         []string{"/a", "/b"},
		},
		{PeerID: "p2", Domain: "abcde", ConnectedAt: start},
	}

	var buf bytes.Buffer
	if err := printSessions(&buf, sessions); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"PEER", "p1", "1m30s", "liveness_timeout", "/a,/b", "p2", "active", "2026-01-02 03:04:05"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
