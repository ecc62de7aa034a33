package credentials

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("irrelevant-since-unverified"))
	require.NoError(t, err)
	return signed
}

func TestExpiryFromResponsePrefersJWTExpClaim(t *testing.T) {
	jwtExp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	out := hubRefreshResponse{
		AccessToken: signedTestToken(t, jwtExp),
		ExpiresIn:   60, // deliberately different from the JWT's own exp
	}

	got := expiryFromResponse(out)
	assert.Equal(t, jwtExp.UTC(), got.UTC())
}

func TestExpiryFromResponseFallsBackToExpiresInForNonJWT(t *testing.T) {
	out := hubRefreshResponse{
		AccessToken: "not-a-jwt",
		ExpiresIn:   300,
	}

	before := time.Now()
	got := expiryFromResponse(out)
	after := time.Now()

	assert.True(t, !got.Before(before.Add(299*time.Second)))
	assert.True(t, !got.After(after.Add(301*time.Second)))
}

func TestUnverifiedClaimsRejectsMalformedToken(t *testing.T) {
	_, err := unverifiedClaims("not-a-jwt-at-all")
	assert.Error(t, err)
}
