// Package portal implements the authenticated channel to one ArcGIS
// portal: paginated search queries, item CRUD, and the token
// lifecycle. One Session owns one portal base URL.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/metrics"
	"github.com/green3g/vscode-arcgis-assistant/internal/retry"
)

const (
	defaultPortal   = "https://maps.arcgis.com"
	defaultPageSize = 100
	restEndpoint    = "sharing/rest"

	// Portal error codes signalling an expired or invalid token.
	codeInvalidToken = 498
	codeTokenNeeded  = 499
)

// Credential is an access token for one portal, with the refresh
// token and username the provider resolved alongside it.
type Credential struct {
	Token        string
	RefreshToken string
	Username     string
	Expiry       time.Time
}

func (c *Credential) valid() bool {
	if c == nil || c.Token == "" {
		return false
	}
	return c.Expiry.IsZero() || time.Now().Before(c.Expiry)
}

// TokenProvider runs the external login flow. Implementations open a
// browser and wait for the OAuth callback; tests substitute fakes.
type TokenProvider interface {
	GetAccessToken(ctx context.Context, portalURL, appID string) (*Credential, error)
	RefreshAccessToken(ctx context.Context, portalURL, appID, refreshToken string) (*Credential, error)
}

// Profile describes the authenticated user.
type Profile struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	OrgID    string `json:"orgId"`
}

// Options configures a Session.
type Options struct {
	Portal      string // base URL, e.g. https://org.maps.arcgis.com
	AppID       string
	PageSize    int
	HTTPClient  *http.Client
	AuthTimeout time.Duration // bound on the interactive login flow
	Retry       retry.Config  // read-path retry policy
	Tokens      TokenProvider
}

// Session is one authenticated connection to one portal. The token
// and the pending login are the only mutable shared state; queries
// treat the session as read-only.
type Session struct {
	portal      string
	appID       string
	pageSize    int
	httpClient  *http.Client
	authTimeout time.Duration
	retryCfg    retry.Config
	tokens      TokenProvider

	mu      sync.Mutex
	cred    *Credential
	pending *authAttempt
	profile *Profile
}

// authAttempt is one in-flight login shared by all concurrent callers.
type authAttempt struct {
	done chan struct{}
	cred *Credential
	err  error
}

// NewSession creates a session for the given portal.
func NewSession(opts Options) *Session {
	portal := NormalizePortalURL(opts.Portal)
	if portal == "" {
		portal = defaultPortal
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 120 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Session{
		portal:      portal,
		appID:       opts.AppID,
		pageSize:    opts.PageSize,
		httpClient:  opts.HTTPClient,
		authTimeout: opts.AuthTimeout,
		retryCfg:    opts.Retry,
		tokens:      opts.Tokens,
	}
}

var schemePattern = regexp.MustCompile(`^https?://`)

// NormalizePortalURL standardizes user input into a portal base URL:
// scheme and sharing fragments stripped, https forced, no trailing
// slash.
func NormalizePortalURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	u = schemePattern.ReplaceAllString(u, "")
	u = strings.ReplaceAll(u, "/rest/sharing", "")
	u = strings.ReplaceAll(u, "/sharing/rest", "")
	u = strings.TrimSuffix(u, "/")
	return "https://" + u
}

// Portal returns the base URL.
func (s *Session) Portal() string { return s.portal }

// PortalName returns the host part of the base URL, used as the first
// segment of virtual file paths.
func (s *Session) PortalName() string {
	return schemePattern.ReplaceAllString(s.portal, "")
}

// RestURL returns the sharing REST root.
func (s *Session) RestURL() string {
	return s.portal + "/" + restEndpoint
}

// PageSize returns the configured search page size.
func (s *Session) PageSize() int { return s.pageSize }

// Username returns the authenticated username, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.Username
}

// Authenticate returns a valid credential, starting at most one login
// flow. Concurrent callers share the same in-flight attempt, so a
// burst of queries never opens duplicate browser prompts.
func (s *Session) Authenticate(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	if s.cred.valid() {
		cred := s.cred
		s.mu.Unlock()
		return cred, nil
	}
	if s.pending != nil {
		attempt := s.pending
		s.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.cred, attempt.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	attempt := &authAttempt{done: make(chan struct{})}
	s.pending = attempt
	refreshToken := ""
	if s.cred != nil {
		refreshToken = s.cred.RefreshToken
	}
	s.mu.Unlock()

	cred, err := s.login(ctx, refreshToken)

	s.mu.Lock()
	s.pending = nil
	if err == nil {
		s.cred = cred
	}
	s.mu.Unlock()

	attempt.cred, attempt.err = cred, err
	close(attempt.done)
	metrics.RecordAuthAttempt(err == nil)
	return cred, err
}

// login runs the refresh grant when a refresh token exists, falling
// back to the interactive flow exactly once if the refresh fails.
// The whole operation is bounded by the auth timeout so an abandoned
// browser window cannot leave the session stuck.
func (s *Session) login(ctx context.Context, refreshToken string) (*Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.authTimeout)
	defer cancel()

	if refreshToken != "" {
		cred, err := s.tokens.RefreshAccessToken(ctx, s.portal, s.appID, refreshToken)
		if err == nil {
			return cred, nil
		}
		logging.Warn("token refresh failed, starting interactive login",
			zap.String("portal", s.PortalName()), zap.Error(err))
	}

	cred, err := s.tokens.GetAccessToken(ctx, s.portal, s.appID)
	if err != nil {
		return nil, &AuthError{Portal: s.PortalName(), Err: err}
	}
	logging.Info("authenticated",
		zap.String("portal", s.PortalName()), zap.String("username", cred.Username))
	return cred, nil
}

// invalidate drops the cached token if it still matches, keeping the
// refresh token so the next Authenticate can use the refresh grant.
func (s *Session) invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil && s.cred.Token == token {
		s.cred = &Credential{
			RefreshToken: s.cred.RefreshToken,
			Username:     s.cred.Username,
		}
	}
}

// Self returns the authenticated user's profile, fetched once.
func (s *Session) Self(ctx context.Context) (*Profile, error) {
	s.mu.Lock()
	if s.profile != nil {
		p := s.profile
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	var profile Profile
	if err := s.get(ctx, "self", "/community/self", nil, &profile); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.profile = &profile
	s.mu.Unlock()
	return &profile, nil
}

// apiError is the error envelope the portal embeds in 200 responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// get issues an authenticated read with the silent-retry policy for
// transport failures.
func (s *Session) get(ctx context.Context, op, path string, query url.Values, out any) error {
	_, err := retry.Do(ctx, s.retryCfg, func() (struct{}, error) {
		err := s.request(ctx, op, path, query, nil, out)
		var ne *NetworkError
		if errors.As(err, &ne) {
			return struct{}{}, retry.Transient(err)
		}
		return struct{}{}, err
	})
	return err
}

// post issues an authenticated write. Writes are never retried.
func (s *Session) post(ctx context.Context, op, path string, form url.Values, out any) error {
	return s.request(ctx, op, path, nil, form, out)
}

func (s *Session) request(ctx context.Context, op, path string, query, form url.Values, out any) error {
	start := time.Now()
	err := s.do(ctx, path, query, form, out, true)
	metrics.RecordPortalRequest(op, err, start)
	return err
}

// do performs one REST call, replaying it a single time after a token
// refresh when the portal reports the token invalid.
func (s *Session) do(ctx context.Context, path string, query, form url.Values, out any, allowReauth bool) error {
	cred, err := s.Authenticate(ctx)
	if err != nil {
		return err
	}

	endpoint := s.RestURL() + path
	var req *http.Request
	if form != nil {
		body := url.Values{}
		for k, vs := range form {
			body[k] = vs
		}
		body.Set("f", "json")
		body.Set("token", cred.Token)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("f", "json")
		q.Set("token", cred.Token)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: path, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{ID: path}
	}
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	// The portal reports API errors inside a 200 response.
	var envelope apiError
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != 0 {
		switch envelope.Error.Code {
		case codeInvalidToken, codeTokenNeeded:
			if allowReauth {
				logging.Debug("token rejected, refreshing", zap.String("path", path))
				s.invalidate(cred.Token)
				return s.do(ctx, path, query, form, out, false)
			}
			return &AuthError{Portal: s.PortalName(), Err: fmt.Errorf("%s", envelope.Error.Message)}
		case http.StatusNotFound:
			return &NotFoundError{ID: path}
		default:
			return &RemoteError{Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
	}

	if out == nil {
		return nil
	}
	// Item data payloads may be any content type, not just JSON.
	if raw, ok := out.(*rawBody); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

// rawBody asks do to hand back the response bytes verbatim.
type rawBody []byte
