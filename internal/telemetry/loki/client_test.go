package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{"event_type":"login_success","auth_method":"ad","user_id":"u1","created_at":"2026-03-01T12:00:00Z"}`)
	c := NewClient(srv.URL+"/", "", nil)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != "helpdesk-auth" || s.Stream["event_type"] != "login_success" || s.Stream["auth_method"] != "ad" {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user_id must not become a label")
	}
	if s.Values[0][0] != strconv.FormatInt(created.UnixNano(), 10) {
		t.Errorf("timestamp = %s", s.Values[0][0])
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %s", s.Values[0][1])
	}
}

func TestPushEventJSON_UnparsableLine(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "auth", nil).PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams[0].Stream) != 1 || got.Streams[0].Stream["job"] != "auth" {
		t.Errorf("labels = %v", got.Streams[0].Stream)
	}
}

func TestPushEvent_Errors(t *testing.T) {
	if err := NewClient("", "", nil).PushEvent(context.Background(), time.Now(), "x", nil); err == nil {
		t.Error("empty base URL should fail")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if err := NewClient(srv.URL, "", nil).PushEvent(context.Background(), time.Now(), "x", map[string]string{"a": "b c"}); err == nil {
		t.Error("non-2xx should fail")
	}
}
