package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth mints GitHub App installation tokens as an alternative to
// per-repo personal access tokens. Tokens are cached per repository
// until shortly before expiry.
type AppAuth struct {
	AppID      string
	PrivateKey []byte

	apiBase    string // overridable in tests
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]*installationToken
}

type installationToken struct {
	token     string
	expiresAt time.Time
}

// NewAppAuth creates an installation-token provider from a PEM-encoded
// RSA private key.
func NewAppAuth(appID string, privateKey []byte) *AppAuth {
	return &AppAuth{
		AppID:      appID,
		PrivateKey: privateKey,
		apiBase:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 20 * time.Second},
		cache:      make(map[string]*installationToken),
	}
}

// generateJWT creates the short-lived App JWT that authorizes
// installation lookups and token minting.
func (a *AppAuth) generateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(a.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("parse app private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app id %q: %w", a.AppID, err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign app JWT: %w", err)
	}
	return signed, nil
}

// Token returns an installation access token valid for the given
// "org/repo", reusing a cached one when it has more than a minute of
// life left.
func (a *AppAuth) Token(ctx context.Context, repo string) (string, error) {
	a.mu.Lock()
	if cached, ok := a.cache[repo]; ok && time.Until(cached.expiresAt) > time.Minute {
		token := cached.token
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", err
	}

	installationID, err := a.installationID(ctx, jwtToken, repo)
	if err != nil {
		return "", err
	}

	minted, err := a.mintToken(ctx, jwtToken, installationID)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.cache[repo] = minted
	a.mu.Unlock()

	return minted.token, nil
}

func (a *AppAuth) installationID(ctx context.Context, jwtToken, repo string) (int64, error) {
	owner, name, found := strings.Cut(repo, "/")
	if !found || owner == "" || name == "" {
		return 0, fmt.Errorf("invalid repo %q (expected owner/repo)", repo)
	}

	var result struct {
		ID int64 `json:"id"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s/installation", a.apiBase, owner, name)
	if err := a.doJSON(ctx, http.MethodGet, url, jwtToken, &result); err != nil {
		return 0, fmt.Errorf("lookup installation for %s: %w", repo, err)
	}
	return result.ID, nil
}

func (a *AppAuth) mintToken(ctx context.Context, jwtToken string, installationID int64) (*installationToken, error) {
	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBase, installationID)
	if err := a.doJSON(ctx, http.MethodPost, url, jwtToken, &result); err != nil {
		return nil, fmt.Errorf("mint installation token: %w", err)
	}
	return &installationToken{token: result.Token, expiresAt: result.ExpiresAt}, nil
}

func (a *AppAuth) doJSON(ctx context.Context, method, url, jwtToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
