// Package signature verifies the ElevenLabs-style post-call webhook
// signature header (spec §6.2): `elevenlabs-signature: t=<ts>,v0=<hex
// hmac_sha256(secret, ts + "." + body)>`.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMalformedHeader = errors.New("signature: malformed header")
	ErrMismatch        = errors.New("signature: hmac mismatch")
)

// Verify checks header against secret and body. Both timestamp and v0
// fields must be present; Verify does not enforce a freshness window
// itself — callers that want one apply it against the returned timestamp.
func Verify(header, secret string, body []byte) (timestamp string, err error) {
	ts, v0, err := parseHeader(header)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v0)) {
		return "", ErrMismatch
	}
	return ts, nil
}

// parseHeader splits "t=<ts>,v0=<hex>" into its two fields.
func parseHeader(header string) (ts, v0 string, err error) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v0":
			v0 = kv[1]
		}
	}
	if ts == "" || v0 == "" {
		return "", "", ErrMalformedHeader
	}
	return ts, v0, nil
}
