// Package oauth runs the browser-based OAuth2 flow against an ArcGIS
// portal. Each call stands up a transient local callback listener,
// opens the system browser to the portal's authorize endpoint, and
// exchanges the returned code for a token. The listener is shut down
// once the flow resolves or times out, so repeated calls are safe.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/portal"
)

const successPage = `<html><body>Login successful! You may now close this page.</body></html>`

// Flow implements portal.TokenProvider with the authorization-code
// grant.
type Flow struct {
	Port    int           // callback port; 0 picks a free one
	Timeout time.Duration // bound on waiting for the redirect
	OpenURL func(string) error
}

// New returns a Flow listening on port with the given timeout.
func New(port int, timeout time.Duration) *Flow {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Flow{Port: port, Timeout: timeout, OpenURL: openBrowser}
}

func endpoints(portalURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  portalURL + "/sharing/oauth2/authorize",
		TokenURL: portalURL + "/sharing/oauth2/token",
	}
}

// GetAccessToken runs one interactive login.
func (f *Flow) GetAccessToken(ctx context.Context, portalURL, appID string) (*portal.Credential, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.Port))
	if err != nil {
		return nil, fmt.Errorf("start callback listener: %w", err)
	}

	cfg := &oauth2.Config{
		ClientID:    appID,
		Endpoint:    endpoints(portalURL),
		RedirectURL: fmt.Sprintf("http://%s/callback", listener.Addr().String()),
	}

	state, err := nonce()
	if err != nil {
		listener.Close()
		return nil, err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "no login code was passed", http.StatusBadRequest)
			errCh <- fmt.Errorf("no login code in callback")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, successPage)
		codeCh <- code
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state)
	logging.Info("opening browser for portal login", zap.String("portal", portalURL))
	if err := f.OpenURL(authURL); err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(f.Timeout):
		return nil, fmt.Errorf("login timed out after %s", f.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return credentialFrom(token), nil
}

// RefreshAccessToken exchanges a refresh token for a fresh access
// token without user interaction.
func (f *Flow) RefreshAccessToken(ctx context.Context, portalURL, appID, refreshToken string) (*portal.Credential, error) {
	cfg := &oauth2.Config{ClientID: appID, Endpoint: endpoints(portalURL)}
	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	cred := credentialFrom(token)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func credentialFrom(token *oauth2.Token) *portal.Credential {
	cred := &portal.Credential{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	// The portal includes the username alongside the token.
	if username, ok := token.Extra("username").(string); ok {
		cred.Username = username
	}
	return cred
}

func nonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
