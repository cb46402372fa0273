// Package upstox integrates with the Upstox brokerage REST API.
package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/logging"
)

const (
	defaultBaseURL = "https://api.upstox.com"
	dialogPath     = "/v2/login/authorization/dialog"
	tokenPath      = "/v2/login/authorization/token"
)

// Tokens expire at a fixed wall-clock cutoff each day, independent of when
// they were issued. This is how the brokerage operates; do not change it to
// a rolling expiry.
const (
	cutoffHour   = 3
	cutoffMinute = 30
)

var istLocation = mustLoadIST()

func mustLoadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// TokenCutoff returns the instant at which a token issued at 'issued'
// expires: the next 03:30 IST strictly after issuance.
func TokenCutoff(issued time.Time) time.Time {
	t := issued.In(istLocation)
	cutoff := time.Date(t.Year(), t.Month(), t.Day(), cutoffHour, cutoffMinute, 0, 0, istLocation)
	if !cutoff.After(t) {
		cutoff = cutoff.AddDate(0, 0, 1)
	}
	return cutoff
}

// Session is a bearer credential with its daily expiry.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the session token is still usable.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// AuthConfig holds OAuth client settings.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// SessionPath is where the exchanged token is persisted. Empty disables
	// persistence.
	SessionPath string
	// BaseURL overrides the API host, for tests.
	BaseURL string
}

// Authenticator performs the OAuth code exchange and manages the persisted
// session. It does not refresh tokens: when the daily cutoff passes the
// caller must log in again.
type Authenticator struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	secret      string
	redirectURL string
	sessionPath string
	logger      zerolog.Logger
	mu          sync.RWMutex
	session     *Session
}

// NewAuthenticator creates an Authenticator and loads any persisted session.
func NewAuthenticator(logger zerolog.Logger, cfg AuthConfig) *Authenticator {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	a := &Authenticator{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     base,
		clientID:    cfg.ClientID,
		secret:      cfg.ClientSecret,
		redirectURL: cfg.RedirectURL,
		sessionPath: cfg.SessionPath,
		logger:      logging.WithComponent(logger, "upstox"),
	}
	_ = a.loadSession()
	return a
}

type dialogQuery struct {
	ResponseType string `url:"response_type"`
	ClientID     string `url:"client_id"`
	RedirectURI  string `url:"redirect_uri"`
}

// LoginURL returns the authorization dialog URL the user must visit to
// obtain a one-time code.
func (a *Authenticator) LoginURL() string {
	vals, _ := query.Values(dialogQuery{
		ResponseType: "code",
		ClientID:     a.clientID,
		RedirectURI:  a.redirectURL,
	})
	return a.baseURL + dialogPath + "?" + vals.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Status      string `json:"status"`
	Errors      []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Exchange swaps a one-time authorization code for a bearer token. The
// resulting session expires at the next daily cutoff and is persisted when a
// session path is configured.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Session, error) {
	if code == "" {
		return nil, errors.NewAuthError("empty authorization code", nil)
	}

	form := url.Values{
		"code":          {code},
		"client_id":     {a.clientID},
		"client_secret": {a.secret},
		"redirect_uri":  {a.redirectURL},
		"grant_type":    {"authorization_code"},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+tokenPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	logging.LogAPICall(a.logger, http.MethodPost, tokenPath, time.Since(start), err)
	if err != nil {
		return nil, errors.NewAuthError("token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.NewAuthError("decoding token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || body.AccessToken == "" {
		reason := fmt.Sprintf("token exchange rejected (status %d)", resp.StatusCode)
		if len(body.Errors) > 0 {
			reason = body.Errors[0].Message
		}
		return nil, errors.NewAuthError(reason, errors.ErrAuthenticationFailed)
	}

	session := &Session{
		AccessToken: body.AccessToken,
		ExpiresAt:   TokenCutoff(time.Now()),
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	if err := a.saveSession(session); err != nil {
		a.logger.Warn().Err(err).Msg("failed to persist session")
	}

	return session, nil
}

// SetToken installs an externally supplied token (e.g. from the TOKEN
// environment variable), giving it the standard daily expiry.
func (a *Authenticator) SetToken(token string) {
	if token == "" {
		return
	}
	a.mu.Lock()
	a.session = &Session{AccessToken: token, ExpiresAt: TokenCutoff(time.Now())}
	a.mu.Unlock()
}

// Token returns the current bearer token, or an error when absent/expired.
func (a *Authenticator) Token() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.session == nil || a.session.AccessToken == "" {
		return "", errors.ErrNotAuthenticated
	}
	if !a.session.Valid(time.Now()) {
		return "", errors.ErrSessionExpired
	}
	return a.session.AccessToken, nil
}

// Session returns a copy of the current session, if any.
func (a *Authenticator) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// Logout drops the in-memory session and removes the persisted file.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()

	if a.sessionPath == "" {
		return nil
	}
	if err := os.Remove(a.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

func (a *Authenticator) loadSession() error {
	if a.sessionPath == "" {
		return nil
	}

	data, err := os.ReadFile(a.sessionPath)
	if err != nil {
		return err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}
	if !session.Valid(time.Now()) {
		return errors.ErrSessionExpired
	}

	a.mu.Lock()
	a.session = &session
	a.mu.Unlock()
	return nil
}

func (a *Authenticator) saveSession(session *Session) error {
	if a.sessionPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.sessionPath), 0700); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// Restricted permissions: the file holds a live credential.
	return os.WriteFile(a.sessionPath, data, 0600)
}
