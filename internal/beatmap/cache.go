package beatmap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kudosu/internal/logging"
	"kudosu/internal/metrics"
)

// Chart files are immutable and keyed solely by beatmap id, so two
// mirrors can serve the same content. Downloads race both and keep
// whichever answers first with a 200.
var defaultMirrors = []string{
	"https://osu.ppy.sh/osu/%d",
	"https://api.osu.direct/osu/%d",
}

// Cache stores downloaded .osu chart files under a root directory.
type Cache struct {
	root       string
	mirrors    []string
	httpClient *http.Client
}

func NewCache(root string) *Cache {
	return &Cache{
		root:       root,
		mirrors:    defaultMirrors,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Path returns the local path for a beatmap id without touching the network.
func (c *Cache) Path(beatmapID int64) string {
	return filepath.Join(c.root, fmt.Sprintf("%d.osu", beatmapID))
}

// Ensure returns the local chart path, downloading it if absent.
func (c *Cache) Ensure(ctx context.Context, beatmapID int64) (string, error) {
	path := c.Path(beatmapID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return "", err
	}
	body, err := c.fetchFirst(ctx, beatmapID)
	if err != nil {
		metrics.MapDownloads.WithLabelValues("error").Inc()
		return "", err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	metrics.MapDownloads.WithLabelValues("ok").Inc()
	logging.Info("map_downloaded", map[string]any{"beatmap_id": beatmapID, "bytes": len(body)})
	return path, nil
}

// fetchFirst races all mirrors and returns the first successful body.
// Remaining requests are cancelled once a winner is picked.
func (c *Cache) fetchFirst(ctx context.Context, beatmapID int64) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, len(c.mirrors))
	var wg sync.WaitGroup
	for _, m := range c.mirrors {
		u := fmt.Sprintf(m, beatmapID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := c.fetchOne(ctx, u)
			ch <- result{body: body, err: err}
		}()
	}
	go func() { wg.Wait(); close(ch) }()

	var lastErr error
	for r := range ch {
		if r.err == nil {
			return r.body, nil
		}
		lastErr = r.err
	}
	return nil, fmt.Errorf("download beatmap %d: %w", beatmapID, lastErr)
}

func (c *Cache) fetchOne(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
