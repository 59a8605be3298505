package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callengine/internal/signature"
)

func mustSign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v0=" + hex.EncodeToString(mac.Sum(nil))
}

// S5: given secret "s", ts "1700000000", body {"ok":true}, v0 equals
// hex(hmac_sha256("s", "1700000000.{\"ok\":true}")).
func TestVerify_MatchesKnownVector(t *testing.T) {
	body := []byte(`{"ok":true}`)
	header := mustSign("s", "1700000000", body)

	ts, err := signature.Verify(header, "s", body)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", ts)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"ok":true}`)
	header := mustSign("s", "1700000000", body)
	_, err := signature.Verify(header, "not-s", body)
	assert.ErrorIs(t, err, signature.ErrMismatch)
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	header := mustSign("s", "1700000000", []byte(`{"ok":true}`))
	_, err := signature.Verify(header, "s", []byte(`{"ok":false}`))
	assert.ErrorIs(t, err, signature.ErrMismatch)
}

func TestVerify_RejectsMalformedHeader(t *testing.T) {
	_, err := signature.Verify("garbage", "s", []byte("{}"))
	assert.ErrorIs(t, err, signature.ErrMalformedHeader)
}
