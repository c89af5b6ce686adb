package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	for _, id := range []int{1, 42, 99999} {
		signed, err := issuer.Issue(id)
		require.NoError(t, err)

		got, err := issuer.Verify(signed)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := NewIssuer(testSecret, -time.Minute)

	signed, err := issuer.Issue(7)
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyTamperedToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	signed, err := issuer.Issue(7)
	require.NoError(t, err)

	// Flip a byte in the payload segment; the signature no longer
	// covers the altered content.
	raw := []byte(signed)
	mid := len(raw) / 2
	if raw[mid] == 'A' {
		raw[mid] = 'B'
	} else {
		raw[mid] = 'A'
	}

	_, err = issuer.Verify(string(raw))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyWrongSecret(t *testing.T) {
	signed, err := NewIssuer("one secret", time.Hour).Issue(7)
	require.NoError(t, err)

	_, err = NewIssuer("another secret", time.Hour).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	for _, input := range []string{"", "garbage", "a.b.c"} {
		_, err := issuer.Verify(input)
		assert.ErrorIs(t, err, ErrInvalid, "input %q", input)
	}
}

func TestDefaultTTL(t *testing.T) {
	issuer := NewIssuer(testSecret, 0)
	assert.Equal(t, DefaultTTL, issuer.ttl)
}
