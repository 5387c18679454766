package osuapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const tokenTTL = 24 * time.Hour

// TokenSource is a single-slot holder for the client-credentials bearer
// token. Renewal is lazy: callers ask for the token and the holder
// refreshes it when expired. The mutex spans the whole renewal so two
// callers hitting an expired token trigger only one request.
type TokenSource struct {
	tokenURL     string
	clientID     int64
	clientSecret string
	httpClient   *http.Client

	mu     sync.Mutex
	value  string
	expiry time.Time
	now    func() time.Time
}

func NewTokenSource(tokenURL string, clientID int64, clientSecret string, hc *http.Client) *TokenSource {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   hc,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, renewing it first if the cached
// one has expired.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.value != "" && t.now().Before(t.expiry) {
		return t.value, nil
	}
	if err := t.renewLocked(ctx); err != nil {
		return "", err
	}
	return t.value, nil
}

func (t *TokenSource) renewLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"client_id":     fmt.Sprintf("%d", t.clientID),
		"client_secret": t.clientSecret,
		"grant_type":    "client_credentials",
		"scope":         "public",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token renewal status %d", resp.StatusCode)
	}
	var raw struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}
	if raw.AccessToken == "" {
		return fmt.Errorf("token renewal returned empty token")
	}
	t.value = raw.AccessToken
	t.expiry = t.now().Add(tokenTTL)
	return nil
}
