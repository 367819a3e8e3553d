package jwtx

import "errors"

var (
	// ErrMalformed reports a token that does not split into exactly three
	// dot-separated segments. Structural checks run before anything
	// cryptographic, so a malformed token never reaches the signer.
	ErrMalformed = errors.New("jwtx: malformed token")

	// ErrDecode reports a segment that is not valid base64url or whose
	// JSON body cannot be unmarshalled.
	ErrDecode = errors.New("jwtx: bad segment encoding")

	// ErrInvalidSig means the recomputed signature did not match. Either
	// the token was tampered with or the wrong secret was used; we can't
	// tell which, and callers shouldn't leak which either.
	ErrInvalidSig = errors.New("jwtx: invalid signature")

	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)
