package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// callbackResponseBody is shown in the browser tab after the redirect.
// It is written for every request, whether or not a code was extracted,
// so the tab always closes cleanly.
const callbackResponseBody = "Authorization received. You can close this tab and return to rabbiTTT.\n"

// callbackReadTimeout bounds how long a single callback request may take
// to arrive on an accepted connection.
const callbackReadTimeout = 10 * time.Second

// CallbackResult is the outcome of the single redirect received on the
// callback port: the authorization code, or the provider's error
// indicator, plus the echoed state parameter.
type CallbackResult struct {
	Code  string
	State string
	Err   string
}

// CallbackListener is a one-shot local HTTP listener bound to the fixed
// callback port. Exactly one request on the callback path is converted
// into a CallbackResult; later requests get the generic confirmation
// response and are otherwise ignored.
type CallbackListener struct {
	ln      net.Listener
	srv     *http.Server
	once    sync.Once
	results chan CallbackResult
	logger  *slog.Logger
}

// NewCallbackListener binds the callback port and starts serving. The
// port must be bound before the browser opens the consent page, so the
// redirect always finds a listener. A bind failure is returned as-is;
// the redirect URI registered with the provider is fixed, so no other
// port is ever tried.
func NewCallbackListener(port int, path string, logger *slog.Logger) (*CallbackListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding callback port %d: %w", port, err)
	}

	l := &CallbackListener{
		ln:      ln,
		results: make(chan CallbackResult, 1),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleCallback)

	l.srv = &http.Server{
		Handler:     mux,
		ReadTimeout: callbackReadTimeout,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("callback listener stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	return l, nil
}

// handleCallback answers the redirect. The confirmation body is written
// before the query is inspected so the user-facing tab closes cleanly
// even when the provider reported an error.
func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, callbackResponseBody)

	q := r.URL.Query()
	res := CallbackResult{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Err:   q.Get("error"),
	}

	l.once.Do(func() {
		l.results <- res
	})
}

// Result returns the channel that delivers the single callback result.
func (l *CallbackListener) Result() <-chan CallbackResult {
	return l.results
}

// Port returns the bound port. Useful when the listener was started on
// port 0.
func (l *CallbackListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns the bound address, e.g. "127.0.0.1:8917".
func (l *CallbackListener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops accepting connections and releases the port immediately.
func (l *CallbackListener) Close() error {
	return l.srv.Close()
}
