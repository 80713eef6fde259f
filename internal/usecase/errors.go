package usecase

import "errors"

var (
	// ErrCredentialUnavailable means there is no token and no refresh has produced one yet.
	ErrCredentialUnavailable = errors.New("catalog credential unavailable")
	// ErrCredentialRejected means a freshly solved token failed validation against the API.
	ErrCredentialRejected = errors.New("catalog credential rejected")
	// ErrRefreshTimeout is returned by AwaitRefresh when no new token appeared in time.
	ErrRefreshTimeout = errors.New("credential refresh timed out")
	// ErrInvalidPayload marks task or request input that can never succeed.
	ErrInvalidPayload = errors.New("invalid payload")
)
