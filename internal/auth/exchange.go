package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Exchanger swaps a one-time authorization code for a token bundle. It
// performs no persistence; storing the result is the coordinator's job.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// codeExchanger performs the real token-endpoint call. The client id,
// secret, and redirect URI sent with the exchange come from the same
// oauth2.Config that generated the consent URL, so they always match
// what the provider saw.
type codeExchanger struct {
	cfg *oauth2.Config
}

func (e *codeExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return tok, nil
}
