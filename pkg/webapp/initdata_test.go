package webapp

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST-TOKEN"

func signedInitData(t *testing.T, authDate time.Time, user string) string {
	t.Helper()

	values := url.Values{}
	values.Set("query_id", "AAE-query")
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	if user != "" {
		values.Set("user", user)
	}
	values.Set("hash", Sign(values, testToken))
	return values.Encode()
}

func TestValidateInitDataAcceptsSignedPayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw := signedInitData(t, now.Add(-time.Minute), `{"id":42,"username":"buyer","first_name":"Ann"}`)

	data, err := ValidateInitData(raw, testToken, DefaultMaxAge, now)
	require.NoError(t, err)
	require.NotNil(t, data.User)
	require.Equal(t, int64(42), data.User.ID)
	require.Equal(t, "buyer", data.User.Username)
	require.Equal(t, "AAE-query", data.QueryID)

	session := NewSession(data, " ios ")
	id, ok := session.UserID()
	require.True(t, ok)
	require.Equal(t, int64(42), id)
	require.Equal(t, "ios", session.Platform())
	require.Equal(t, "AAE-query", session.QueryID())
}

func TestValidateInitDataRejectsTamperedPayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw := signedInitData(t, now, `{"id":42}`)

	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	values.Set("user", `{"id":7}`)

	_, err = ValidateInitData(values.Encode(), testToken, DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrInvalidHash)

	_, err = ValidateInitData(raw, "other-token", DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestValidateInitDataRejectsStalePayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw := signedInitData(t, now.Add(-25*time.Hour), `{"id":42}`)

	_, err := ValidateInitData(raw, testToken, DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrExpired)

	_, err = ValidateInitData(raw, testToken, 0, now)
	require.NoError(t, err)
}

func TestValidateInitDataRequiresUserAndHash(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	_, err := ValidateInitData(signedInitData(t, now, ""), testToken, DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrMissingUser)

	_, err = ValidateInitData("auth_date=1&user=%7B%22id%22%3A1%7D", testToken, DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrMissingHash)

	_, err = ValidateInitData("auth_date=1", "", DefaultMaxAge, now)
	require.ErrorIs(t, err, ErrEmptyToken)
}

func TestParseInitData(t *testing.T) {
	_, err := ParseInitData("  ")
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseInitData("auth_date=abc")
	require.Error(t, err)

	_, err = ParseInitData("user=not-json")
	require.Error(t, err)

	data, err := ParseInitData("user=%7B%22id%22%3A5%7D")
	require.NoError(t, err)
	require.Equal(t, int64(5), data.User.ID)
	require.True(t, data.AuthDate.IsZero())
}

func TestNilSessionHasNoUser(t *testing.T) {
	var session *Session
	_, ok := session.UserID()
	require.False(t, ok)

	_, ok = NewSession(InitData{}, "").User()
	require.False(t, ok)
}
