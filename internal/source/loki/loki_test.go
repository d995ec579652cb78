package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crimson-sun/sawmill/internal/source"
)

func TestFetchMergesAndOrdersStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/query_range" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != `{namespace="npps"}` {
			t.Fatalf("unexpected query: %s", got)
		}
		if got := r.URL.Query().Get("direction"); got != "forward" {
			t.Fatalf("unexpected direction: %s", got)
		}
		resp := queryResponse{
			Status: "success",
			Data: queryData{
				ResultType: "streams",
				Result: []stream{
					{
						Labels: map[string]string{"pod": "a"},
						Values: [][2]string{
							{"3000000000", "third"},
							{"1000000000", "first"},
						},
					},
					{
						Labels: map[string]string{"pod": "b"},
						Values: [][2]string{
							{"2000000000", "second"},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := &Source{}
	lines, err := s.Fetch(context.Background(), source.Config{
		Endpoint: srv.URL,
		Query:    `{namespace="npps"}`,
	}, source.FetchParams{Limit: 10})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	want := []string{"first", "second", "third"}
	for i, line := range lines {
		if line.Text != want[i] {
			t.Fatalf("line %d = %q, want %q", i, line.Text, want[i])
		}
		if line.Source != "loki" {
			t.Fatalf("line source = %q", line.Source)
		}
	}
	if !lines[0].Timestamp.Equal(time.Unix(1, 0)) {
		t.Fatalf("timestamp = %v, want %v", lines[0].Timestamp, time.Unix(1, 0))
	}
}

func TestFetchRequiresQuery(t *testing.T) {
	s := &Source{}
	if _, err := s.Fetch(context.Background(), source.Config{}, source.FetchParams{}); err == nil {
		t.Fatal("missing query accepted")
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(queryResponse{Status: "error"})
	}))
	defer srv.Close()

	s := &Source{}
	_, err := s.Fetch(context.Background(), source.Config{Endpoint: srv.URL, Query: "{}"}, source.FetchParams{})
	if err == nil {
		t.Fatal("error status accepted")
	}
}

func TestFetchRegistered(t *testing.T) {
	ctor, err := source.Get("loki")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ctor() == nil {
		t.Fatal("constructor returned nil")
	}
}
