package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPushEvent_EmptyBaseURL(t *testing.T) {
	err := PushEvent(context.Background(), "", time.Now(), "line", nil)
	if err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestPushEvent_SendsStreamWithLabels(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal push body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := PushEvent(context.Background(), srv.URL, ts, `{"eventType":"lab_launched"}`, map[string]string{
		"org_id":     "org-1",
		"event_type": "lab launched!", // invalid chars get sanitized
	})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	stream := got.Streams[0]
	if stream.Stream["job"] != "cloudlab" {
		t.Errorf("job label = %q, want cloudlab", stream.Stream["job"])
	}
	if stream.Stream["event_type"] != "lab_launched_" {
		t.Errorf("sanitized label = %q", stream.Stream["event_type"])
	}
	if len(stream.Values) != 1 || len(stream.Values[0]) != 2 {
		t.Fatalf("values shape = %v", stream.Values)
	}
}

func TestPushEvent_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ingester unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := PushEvent(context.Background(), srv.URL, time.Now(), "line", nil); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestPushEventJSON_ExtractsLabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw := []byte(`{"orgId":"org-1","purchaseId":"purchase-1","eventType":"lab_teardown","source":"sweeper","createdAt":"2026-03-01T10:00:00Z"}`)
	if err := PushEventJSON(context.Background(), srv.URL, raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	stream := got.Streams[0].Stream
	if stream["org_id"] != "org-1" || stream["purchase_id"] != "purchase-1" || stream["source"] != "sweeper" {
		t.Errorf("labels = %v", stream)
	}
	wantNS := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixNano()
	if got.Streams[0].Values[0][0] != jsonInt(wantNS) {
		t.Errorf("timestamp = %s, want %d", got.Streams[0].Values[0][0], wantNS)
	}
}

func TestPushEventJSON_MalformedFallsBackToRawLine(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := PushEventJSON(context.Background(), srv.URL, []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if got.Streams[0].Values[0][1] != "not json" {
		t.Errorf("line = %q", got.Streams[0].Values[0][1])
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
