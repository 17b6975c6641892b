package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critforge/sessiond/internal/wire"
)

var testConfig = Config{
	Secret:   "test-secret-0000000000000000000000",
	Issuer:   "critforge",
	Audience: "sessiond",
}

func TestValidateIssuedToken(t *testing.T) {
	token, err := IssueToken(testConfig, wire.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	identity, err := NewValidator(testConfig).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, "alice", identity.Username)
}

func TestValidateMissingToken(t *testing.T) {
	_, err := NewValidator(testConfig).Validate("")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = NewValidator(testConfig).Validate("   ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestValidateWrongSecret(t *testing.T) {
	otherConfig := testConfig
	otherConfig.Secret = "another-secret-entirely-0000000000"

	token, err := IssueToken(otherConfig, wire.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	_, err = NewValidator(testConfig).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpiredToken(t *testing.T) {
	token, err := IssueToken(testConfig, wire.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	v := NewValidator(testConfig)
	v.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = v.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateWrongAudience(t *testing.T) {
	otherConfig := testConfig
	otherConfig.Audience = "some-other-service"

	token, err := IssueToken(otherConfig, wire.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	_, err = NewValidator(testConfig).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateWrongIssuer(t *testing.T) {
	otherConfig := testConfig
	otherConfig.Issuer = "somebody-else"

	token, err := IssueToken(otherConfig, wire.Identity{UserID: "u-1", Username: "alice"}, time.Hour)
	require.NoError(t, err)

	_, err = NewValidator(testConfig).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateUsernameFallsBackToSubject(t *testing.T) {
	token, err := IssueToken(testConfig, wire.Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)

	identity, err := NewValidator(testConfig).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.Username)
}

func TestValidateGarbageToken(t *testing.T) {
	_, err := NewValidator(testConfig).Validate("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SESSIOND_AUTH_SECRET", "from-the-environment")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-the-environment", cfg.Secret)
	assert.Equal(t, "critforge", cfg.Issuer)
	assert.Equal(t, "sessiond", cfg.Audience)
}

func TestLoadConfigFromEnvRequiresSecret(t *testing.T) {
	t.Setenv("SESSIOND_AUTH_SECRET", "")

	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}
