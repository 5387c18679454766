package beatmap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, mirrors ...string) *Cache {
	t.Helper()
	c := NewCache(t.TempDir())
	c.mirrors = mirrors
	return c
}

func TestEnsureDownloadsFromFirstGoodMirror(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "osu file format v14")
	}))
	defer good.Close()

	c := newTestCache(t, bad.URL+"/%d", good.URL+"/%d")
	path, err := c.Ensure(context.Background(), 123)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "osu file format v14" {
		t.Fatalf("got %q", b)
	}
	if filepath.Base(path) != "123.osu" {
		t.Fatalf("file must be keyed by beatmap id: %s", path)
	}
}

func TestEnsureRaceKeepsFirstSuccess(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fast")
	}))
	defer fast.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		fmt.Fprint(w, "slow")
	}))
	defer slow.Close()

	c := newTestCache(t, slow.URL+"/%d", fast.URL+"/%d")
	start := time.Now()
	path, err := c.Ensure(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("race did not return on the fast mirror")
	}
	b, _ := os.ReadFile(path)
	if string(b) != "fast" {
		t.Fatalf("got %q", b)
	}
}

func TestEnsureAllMirrorsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	c := newTestCache(t, bad.URL+"/%d", bad.URL+"/x/%d")
	if _, err := c.Ensure(context.Background(), 9); err == nil {
		t.Fatal("expected error when every mirror fails")
	}
}

func TestEnsureCacheHitSkipsNetwork(t *testing.T) {
	c := newTestCache(t, "http://127.0.0.1:0/%d")
	want := c.Path(77)
	if err := os.WriteFile(want, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := c.Ensure(context.Background(), 77)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
