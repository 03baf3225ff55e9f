package vertex

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenManager caches access tokens for the Vertex AI API
type TokenManager struct {
	source      oauth2.TokenSource
	bearerToken string // Optional: pre-configured token

	mu            sync.RWMutex
	token         string
	tokenExpiry   time.Time
	refreshMargin time.Duration
}

// NewTokenManager creates a new token manager. A non-empty bearerToken is used
// as-is and never refreshed.
func NewTokenManager(source oauth2.TokenSource, bearerToken string, refreshMargin time.Duration) *TokenManager {
	tm := &TokenManager{
		source:        source,
		bearerToken:   bearerToken,
		refreshMargin: refreshMargin,
	}

	if bearerToken != "" {
		tm.token = bearerToken
		tm.tokenExpiry = time.Now().Add(365 * 24 * time.Hour)
	}

	return tm
}

// NewTokenSource builds a cloud-platform token source from a service account key
// file, or from application default credentials when credentialsFile is empty.
func NewTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials file: %w", err)
		}
		return creds.TokenSource, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("find default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// GetToken returns a valid token, refreshing if necessary
func (tm *TokenManager) GetToken(ctx context.Context) (string, error) {
	tm.mu.RLock()
	if tm.token != "" && time.Now().Before(tm.tokenExpiry.Add(-tm.refreshMargin)) {
		token := tm.token
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	return tm.refreshToken(ctx)
}

// InvalidateToken forces token refresh on next GetToken call
func (tm *TokenManager) InvalidateToken() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.bearerToken != "" {
		return
	}
	tm.token = ""
	tm.tokenExpiry = time.Time{}
}

func (tm *TokenManager) refreshToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Double-check after acquiring write lock
	if tm.token != "" && time.Now().Before(tm.tokenExpiry.Add(-tm.refreshMargin)) {
		return tm.token, nil
	}

	if tm.source == nil {
		return "", fmt.Errorf("no token source configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok, err := tm.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}

	tm.token = tok.AccessToken
	if tok.Expiry.IsZero() {
		tm.tokenExpiry = time.Now().Add(time.Hour)
	} else {
		tm.tokenExpiry = tok.Expiry
	}

	return tm.token, nil
}
