// Package errors defines sentinel errors shared across rabbittt subsystems.
package errors

import "errors"

// Authorization flow errors.
var (
	ErrTokenNotFound   = errors.New("no stored token")
	ErrAuthInProgress  = errors.New("an authorization attempt is already in progress")
	ErrConsentDenied   = errors.New("authorization denied by provider")
	ErrStateMismatch   = errors.New("authorization callback state mismatch")
	ErrCallbackTimeout = errors.New("timed out waiting for authorization callback")
)
