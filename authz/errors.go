package authz

import "errors"

// Common authorization errors.
var (
	// ErrEmptyCredential indicates that the presented credential is
	// empty.
	ErrEmptyCredential = errors.New("credential is empty")

	// ErrUnknownCredential indicates that the credential resolved to
	// no principal or failed secret verification.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCredentialExpired indicates that the credential or principal
	// has expired.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrCredentialDisabled indicates that the credential or principal
	// has been disabled.
	ErrCredentialDisabled = errors.New("credential disabled")

	// ErrMalformedCredential indicates that the credential does not
	// match the configured scheme's shape.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrMalformedRecord indicates that a stored identity or role
	// record could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)
