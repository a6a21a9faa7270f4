// Package common defines shared constants and sentinel errors used across
// client and server layers of GophNotes. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorAlreadyExists = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrAuthRequired means there is no usable session or user key; the user
	// has to log in again.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidGrant is returned by the server when a refresh token was
	// revoked, rotated or is otherwise unusable. It terminates the session.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrNetwork marks transport failures. Retry policy belongs to the caller.
	ErrNetwork = errors.New("network error")

	// Crypto errors.
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// Local storage errors.
	ErrStorageTransactionFailed = errors.New("storage transaction failed")

	// Monograph errors.
	ErrNoteLocked    = errors.New("note is locked")
	ErrNotPublished  = errors.New("monograph is not published")
	ErrWrongPassword = errors.New("wrong monograph password")
)
