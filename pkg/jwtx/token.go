package jwtx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlgHS256 is the only signing algorithm this package implements. The alg
// parameter exists so a second algorithm can be added without touching the
// segment plumbing, not as a generic extension point.
const AlgHS256 = "HS256"

const typJWT = "JWT"

// Header is the decoded first segment of a token.
type Header map[string]any

// Payload is the decoded second segment: registered claims plus whatever
// the caller put in.
type Payload map[string]any

// Token is the fully materialized three-segment form. DecodeToken never
// returns a partially decoded token; if any segment fails, you get nil.
type Token struct {
	Header    Header
	Payload   Payload
	Signature []byte

	// Raw pieces, useful for re-verification and wire-format tests.
	Raw          string
	HeaderB64    string
	PayloadB64   string
	SignatureB64 string
}

// BuildHeader returns the standard JOSE header for alg.
func BuildHeader(alg string) Header {
	return Header{"alg": alg, "typ": typJWT}
}

// EncodeSegment marshals v to compact JSON and base64url-encodes it.
func EncodeSegment(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("jwtx: marshal segment: %w", err)
	}
	return Encode(b), nil
}

// SignSegments signs "header.payload" and returns the encoded signature.
func SignSegments(headerB64, payloadB64 string, secret []byte) string {
	sig := Sign([]byte(headerB64+"."+payloadB64), secret)
	return Encode(sig)
}

// VerifySegments recomputes the signature over the encoded header and
// payload and compares it against signatureB64 in constant time.
func VerifySegments(headerB64, payloadB64, signatureB64 string, secret []byte) error {
	sig, err := Decode(signatureB64)
	if err != nil {
		return err
	}
	if !Verify([]byte(headerB64+"."+payloadB64), sig, secret) {
		return ErrInvalidSig
	}
	return nil
}

// VerifyTimestamps checks exp and nbf against the supplied time. The clock
// comes from the caller so tests can pin it; nothing in this package reads
// the wall clock. A missing exp counts as already expired, a missing nbf as
// always valid.
func VerifyTimestamps(payload Payload, now time.Time) error {
	ts := float64(now.Unix())
	if ts > numericClaim(payload, "exp") {
		return ErrExpired
	}
	if ts < numericClaim(payload, "nbf") {
		return ErrNotYetValid
	}
	return nil
}

// numericClaim reads a numeric claim regardless of how it got into the map:
// int64 when built locally, float64 or json.Number after a round trip
// through encoding/json.
func numericClaim(payload Payload, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

// CreateToken signs payload as-is and assembles the compact serialization.
// Standard claims are the caller's problem (see StandardClaims); this
// function is pure segment plumbing with no side effects.
func CreateToken(payload Payload, secret []byte, alg string) (*Token, error) {
	header := BuildHeader(alg)

	headerB64, err := EncodeSegment(header)
	if err != nil {
		return nil, err
	}
	payloadB64, err := EncodeSegment(payload)
	if err != nil {
		return nil, err
	}

	sigB64 := SignSegments(headerB64, payloadB64, secret)
	sig, err := Decode(sigB64)
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:       header,
		Payload:      payload,
		Signature:    sig,
		Raw:          headerB64 + "." + payloadB64 + "." + sigB64,
		HeaderB64:    headerB64,
		PayloadB64:   payloadB64,
		SignatureB64: sigB64,
	}, nil
}

// DecodeToken parses and verifies a compact token. Check order matters:
//
//  1. structure (exactly 3 segments)
//  2. segment decoding (base64url, then JSON)
//  3. signature
//  4. timestamps
//
// The signature must be good before exp/nbf are trusted; a forged payload's
// exp is not authoritative.
func DecodeToken(raw string, secret []byte, now time.Time) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	headerBytes, err := Decode(parts[0])
	if err != nil {
		return nil, err
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrDecode, err)
	}

	payloadBytes, err := Decode(parts[1])
	if err != nil {
		return nil, err
	}
	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}

	if err := VerifySegments(parts[0], parts[1], parts[2], secret); err != nil {
		return nil, err
	}
	if err := VerifyTimestamps(payload, now); err != nil {
		return nil, err
	}

	sig, err := Decode(parts[2])
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:       header,
		Payload:      payload,
		Signature:    sig,
		Raw:          raw,
		HeaderB64:    parts[0],
		PayloadB64:   parts[1],
		SignatureB64: parts[2],
	}, nil
}
