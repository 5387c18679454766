package osuapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kudosu/internal/model"

	"golang.org/x/time/rate"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{
		baseURL:     srv.URL,
		tokens:      NewTokenSource(srv.URL+"/oauth/token", 1, "secret", srv.Client()),
		httpClient:  srv.Client(),
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxAttempts: 5,
	}
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 86400})
}

func TestFetchBestScoresNormalizesMods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		fmt.Fprint(w, `[
		  {"beatmap_id": 10, "pp": 200.5, "mods": [{"acronym":"CL"},{"acronym":"HD"},{"acronym":"DT"}]},
		  {"beatmap_id": 20, "pp": null, "mods": [{"acronym":"CL"}]}
		]`)
	}))
	defer srv.Close()
	c := testClient(srv)
	got, err := c.FetchBestScores(context.Background(), 42, model.RulesetCatch)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d scores", len(got))
	}
	if got[0].Mods != "HDDT" {
		t.Fatalf("CL must be stripped: %q", got[0].Mods)
	}
	if got[0].BPPosition != 0 || got[1].BPPosition != 1 {
		t.Fatal("bp positions must follow list order")
	}
	if got[1].Mods != "" || got[1].PP != 0 {
		t.Fatalf("got %+v", got[1])
	}
	if got[0].PlayerID != 42 {
		t.Fatal("player id must be attached")
	}
}

func TestFetchRankingPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		fmt.Fprint(w, `{"ranking":[{"user":{"id":11}},{"user":{"id":22}}]}`)
	}))
	defer srv.Close()
	c := testClient(srv)
	ids, err := c.FetchRankingPage(context.Background(), model.RulesetCatch, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 11 || ids[1] != 22 {
		t.Fatalf("got %v", ids)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		if calls.Add(1) < 5 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ranking":[]}`)
	}))
	defer srv.Close()
	c := testClient(srv)
	if _, err := c.FetchRankingPage(context.Background(), model.RulesetCatch, 1); err != nil {
		t.Fatalf("fifth attempt should succeed: %v", err)
	}
	if calls.Load() != 5 {
		t.Fatalf("expected 5 attempts, got %d", calls.Load())
	}
}

func TestRetryExhaustionReturnsError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenHandler(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := testClient(srv)
	_, err := c.FetchRankingPage(context.Background(), model.RulesetCatch, 1)
	if err == nil {
		t.Fatal("exhausted retries must surface an error, not empty data")
	}
	if calls.Load() != 5 {
		t.Fatalf("expected 5 attempts, got %d", calls.Load())
	}
}

func TestTokenRenewedOnceAndOnExpiry(t *testing.T) {
	var renewals atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renewals.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": fmt.Sprintf("tok%d", renewals.Load())})
	}))
	defer srv.Close()
	ts := NewTokenSource(srv.URL, 1, "secret", srv.Client())
	now := time.Now()
	ts.now = func() time.Time { return now }

	ctx := context.Background()
	v1, err := ts.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := ts.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 || renewals.Load() != 1 {
		t.Fatalf("token must be cached: %q %q renewals=%d", v1, v2, renewals.Load())
	}

	now = now.Add(tokenTTL + time.Minute)
	v3, err := ts.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v3 == v1 || renewals.Load() != 2 {
		t.Fatalf("expired token must renew: %q renewals=%d", v3, renewals.Load())
	}
}
