package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloudlab-control-plane/internal/security"
	"cloudlab-control-plane/internal/sweeper"
)

type mockSweeper struct {
	summary *sweeper.Summary
	err     error
	called  bool
	gotNow  time.Time
}

func (m *mockSweeper) SweepExpired(ctx context.Context, now time.Time) (*sweeper.Summary, error) {
	m.called = true
	m.gotNow = now
	return m.summary, m.err
}

func newSweepServer(t *testing.T, runner SweepRunner, secret string) *httptest.Server {
	t.Helper()
	hasher := security.NewHasher(4)
	tokenHash := ""
	if secret != "" {
		var err error
		tokenHash, err = hasher.Hash([]byte(secret))
		if err != nil {
			t.Fatalf("hash secret: %v", err)
		}
	}
	mux := http.NewServeMux()
	New(runner, hasher, tokenHash).Register(mux)
	return httptest.NewServer(mux)
}

func postSweep(t *testing.T, url, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/internal/sweep", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

func TestSweep_ValidTokenRunsSweep(t *testing.T) {
	runner := &mockSweeper{summary: &sweeper.Summary{Expired: 3, Swept: 2, Failed: 1, OrphansRemoved: 4}}
	srv := newSweepServer(t, runner, "sweep-secret")
	defer srv.Close()

	resp, body := postSweep(t, srv.URL, "sweep-secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !runner.called {
		t.Fatal("sweeper not called")
	}
	if runner.gotNow.IsZero() {
		t.Error("sweep time not set")
	}
	if body["expired"] != float64(3) || body["swept"] != float64(2) || body["failed"] != float64(1) || body["orphansRemoved"] != float64(4) {
		t.Errorf("summary body: got %v", body)
	}
}

func TestSweep_WrongTokenRejected(t *testing.T) {
	runner := &mockSweeper{summary: &sweeper.Summary{}}
	srv := newSweepServer(t, runner, "sweep-secret")
	defer srv.Close()

	resp, body := postSweep(t, srv.URL, "wrong-secret")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", resp.StatusCode)
	}
	if body["code"] != "unauthenticated" {
		t.Errorf("error code: got %v", body["code"])
	}
	if runner.called {
		t.Error("sweeper called with wrong token")
	}
}

func TestSweep_MissingTokenRejected(t *testing.T) {
	runner := &mockSweeper{summary: &sweeper.Summary{}}
	srv := newSweepServer(t, runner, "sweep-secret")
	defer srv.Close()

	resp, _ := postSweep(t, srv.URL, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", resp.StatusCode)
	}
	if runner.called {
		t.Error("sweeper called without token")
	}
}

func TestSweep_DisabledWithoutHash(t *testing.T) {
	runner := &mockSweeper{summary: &sweeper.Summary{}}
	srv := newSweepServer(t, runner, "")
	defer srv.Close()

	resp, _ := postSweep(t, srv.URL, "anything")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
	if runner.called {
		t.Error("sweeper called while disabled")
	}
}

func TestSweep_SweepErrorIs500(t *testing.T) {
	runner := &mockSweeper{err: errors.New("db down")}
	srv := newSweepServer(t, runner, "sweep-secret")
	defer srv.Close()

	resp, body := postSweep(t, srv.URL, "sweep-secret")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", resp.StatusCode)
	}
	if body["message"] != "internal error" {
		t.Errorf("message: got %v", body["message"])
	}
}
