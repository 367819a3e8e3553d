package jwtx

import "time"

// StandardClaims merges the registered claims into a caller-supplied
// payload. Custom claims go in first, then iss/aud/iat/nbf/exp are written
// over the top, so on a key collision the registered claim always wins.
//
// All time claims are int64 epoch seconds, never time.Time, to match the
// wire format other implementations expect.
func StandardClaims(custom Payload, issuer, audience string, ttl time.Duration, now time.Time) Payload {
	out := make(Payload, len(custom)+5)
	for k, v := range custom {
		out[k] = v
	}

	ts := now.Unix()
	out["iss"] = issuer
	out["aud"] = audience
	out["iat"] = ts
	out["nbf"] = ts
	out["exp"] = now.Add(ttl).Unix()
	return out
}
