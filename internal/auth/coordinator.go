// Package auth implements the OAuth2 authorization-code handshake for
// the calendar provider. It turns a stored-or-absent credential into an
// authorized HTTP client: check the token file, and when nothing usable
// is stored, open the consent page in the user's browser, receive the
// redirect on a transient local listener, exchange the one-time code,
// and persist the resulting token bundle before handing the client to
// the caller.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	rterrors "github.com/wpwwhimself/rabbittt/internal/errors"
	"golang.org/x/oauth2"
)

// CoordinatorConfig wires a Coordinator's collaborators.
type CoordinatorConfig struct {
	// OAuth carries the client id/secret, provider endpoints, redirect
	// URI, and requested scopes. Required.
	OAuth *oauth2.Config

	// Store persists the token bundle. Required.
	Store *TokenStore

	// Exchanger swaps codes for tokens. Defaults to the real
	// token-endpoint call against OAuth's endpoint.
	Exchanger Exchanger

	// Launcher opens the consent URL. Defaults to ExecLauncher.
	Launcher Launcher

	// Timeout bounds the wait for the browser redirect. Zero waits
	// until the context is cancelled.
	Timeout time.Duration
}

// Coordinator runs one authorization attempt at a time: the callback
// port is fixed and shared, so a second concurrent attempt is rejected
// outright rather than coalesced.
type Coordinator struct {
	oauth    *oauth2.Config
	store    *TokenStore
	exch     Exchanger
	launcher Launcher
	timeout  time.Duration
	port     int
	path     string
	logger   *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewCoordinator validates the config and derives the callback port and
// path from the redirect URI, so tests can run independent coordinators
// without port collisions by injecting distinct redirect URIs.
func NewCoordinator(cfg CoordinatorConfig, logger *slog.Logger) (*Coordinator, error) {
	if cfg.OAuth == nil {
		return nil, fmt.Errorf("oauth config is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	u, err := url.Parse(cfg.OAuth.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}

	if u.Port() == "" {
		return nil, fmt.Errorf("redirect URI %q must carry an explicit port", cfg.OAuth.RedirectURL)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI port: %w", err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	exch := cfg.Exchanger
	if exch == nil {
		exch = &codeExchanger{cfg: cfg.OAuth}
	}

	launcher := cfg.Launcher
	if launcher == nil {
		launcher = ExecLauncher{}
	}

	return &Coordinator{
		oauth:    cfg.OAuth,
		store:    cfg.Store,
		exch:     exch,
		launcher: launcher,
		timeout:  cfg.Timeout,
		port:     port,
		path:     path,
		logger:   logger,
	}, nil
}

// Authorize delivers an authorized HTTP client to the continuation. A
// stored credential short-circuits the flow; otherwise the full consent
// handshake runs. The continuation fires at most once per call, and only
// after a fresh credential has been persisted — a crash between exchange
// and continuation still leaves a usable token on disk. On any failure
// the continuation never fires and the error describes the failed stage.
// Nothing is retried automatically; the caller re-triggers authorization.
func (c *Coordinator) Authorize(ctx context.Context, continuation func(*http.Client)) error {
	cred, err := c.store.Load()
	if err == nil {
		c.logger.Info("using stored token", slog.String("path", c.store.Path()))
		continuation(c.oauth.Client(ctx, cred.Token()))

		return nil
	}

	if !errors.Is(err, rterrors.ErrTokenNotFound) {
		// Unreadable or corrupt token file: re-consent instead of failing.
		c.logger.Warn("stored token unusable, re-authorizing", slog.String("error", err.Error()))
	}

	if !c.begin() {
		return rterrors.ErrAuthInProgress
	}
	defer c.end()

	listener, err := NewCallbackListener(c.port, c.path, c.logger)
	if err != nil {
		return fmt.Errorf("starting callback listener: %w", err)
	}
	defer listener.Close()

	state := randomState()
	consentURL := c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)

	c.logger.Info("waiting for consent in browser",
		slog.Int("port", c.port),
		slog.String("path", c.path),
	)

	if err := c.launcher.Open(consentURL); err != nil {
		c.logger.Warn("could not open browser, visit the consent URL manually",
			slog.String("url", consentURL),
			slog.String("error", err.Error()),
		)
	}

	res, err := c.awaitCallback(ctx, listener)
	if err != nil {
		return err
	}

	if res.Err != "" {
		return fmt.Errorf("%w: %s", rterrors.ErrConsentDenied, res.Err)
	}

	if res.State != state {
		return rterrors.ErrStateMismatch
	}

	if res.Code == "" {
		return fmt.Errorf("%w: callback carried no code", rterrors.ErrConsentDenied)
	}

	tok, err := c.exch.Exchange(ctx, res.Code)
	if err != nil {
		return err
	}

	cred = NewCredential(tok, c.oauth.Scopes)
	if err := c.store.Save(cred); err != nil {
		// The in-memory credential is discarded: a caller is only ever
		// handed a token that is also on disk.
		return fmt.Errorf("persisting token: %w", err)
	}

	c.logger.Info("token persisted",
		slog.String("path", c.store.Path()),
		slog.Bool("refresh_token", cred.RefreshToken != ""),
	)

	listener.Close()
	continuation(c.oauth.Client(ctx, cred.Token()))

	return nil
}

// awaitCallback blocks until the listener yields its result, the
// configured timeout expires, or the context is cancelled.
func (c *Coordinator) awaitCallback(ctx context.Context, listener *CallbackListener) (CallbackResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case res := <-listener.Result():
		return res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CallbackResult{}, rterrors.ErrCallbackTimeout
		}

		return CallbackResult{}, fmt.Errorf("waiting for callback: %w", ctx.Err())
	}
}

// begin marks an attempt active. Returns false if one already is.
func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return false
	}
	c.active = true

	return true
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

// randomState generates the CSRF state parameter embedded in the consent
// URL and verified on callback.
func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
