package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mutual-radar/internal/model"
)

const testSecret = "test-secret-that-is-at-least-32-chars!!"

func newTestCodec(t *testing.T) *SessionCodec {
	t.Helper()
	codec, err := NewSessionCodec(testSecret, true)
	require.NoError(t, err)
	return codec
}

func testSession() *model.Session {
	return &model.Session{
		ID:           "cv37rs3pp9olc6atsptg",
		AccessToken:  "access-token-value",
		RefreshToken: "refresh-token-value",
		Scope:        "users.read tweet.read like.read offline.access",
		ExpiresAt:    1767225600,
		User: model.User{
			ID:              "2244994945",
			Name:            "Radar Dev",
			Username:        "radardev",
			ProfileImageURL: "https://pbs.example.com/radardev.jpg",
		},
	}
}

func TestNewSessionCodec_ShortSecret(t *testing.T) {
	_, err := NewSessionCodec("short", false)
	require.Error(t, err)
}

func TestSessionCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	sessions := []*model.Session{
		testSession(),
		{AccessToken: "only-required", User: model.User{ID: "42"}},
		{ID: "x", AccessToken: "tok", Scope: "users.read", User: model.User{ID: "7", Name: "Ünïcødé 🔥", Username: "u"}},
	}

	for _, s := range sessions {
		cookie, err := codec.Encode(s)
		require.NoError(t, err)

		got, ok := codec.Decode(cookie.Value)
		require.True(t, ok, "Decode() rejected a freshly encoded session")
		assert.Equal(t, s, got)
	}
}

func TestSessionCodec_CookieAttributes(t *testing.T) {
	codec := newTestCodec(t)
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return fixed }

	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	assert.Equal(t, SessionCookieName, cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 8*60*60, cookie.MaxAge)
	assert.Equal(t, fixed.Add(8*time.Hour), cookie.Expires)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestSessionCodec_InsecureOutsideProduction(t *testing.T) {
	codec, err := NewSessionCodec(testSecret, false)
	require.NoError(t, err)

	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)
	assert.False(t, cookie.Secure)
}

func TestSessionCodec_EncodeRejectsIncompleteSession(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Encode(nil)
	assert.Error(t, err)

	_, err = codec.Encode(&model.Session{User: model.User{ID: "1"}})
	assert.Error(t, err, "missing access token")

	_, err = codec.Encode(&model.Session{AccessToken: "tok"})
	assert.Error(t, err, "missing user ID")
}

func TestSessionCodec_SingleByteMutationIsAbsent(t *testing.T) {
	codec := newTestCodec(t)
	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	value := []byte(cookie.Value)
	for i := range value {
		mutated := make([]byte, len(value))
		copy(mutated, value)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}

		got, ok := codec.Decode(string(mutated))
		if ok || got != nil {
			t.Fatalf("Decode() accepted value mutated at byte %d", i)
		}
	}
}

func TestSessionCodec_TruncatedIsAbsent(t *testing.T) {
	codec := newTestCodec(t)
	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	for _, cut := range []int{1, 10, len(cookie.Value) / 2, len(cookie.Value) - 1} {
		_, ok := codec.Decode(cookie.Value[:cut])
		assert.False(t, ok, "Decode() accepted value truncated to %d bytes", cut)
	}
}

func TestSessionCodec_GarbageIsAbsent(t *testing.T) {
	codec := newTestCodec(t)

	for _, v := range []string{"", "not-a-jwt", "a.b.c", `{"accessToken":"x"}`} {
		got, ok := codec.Decode(v)
		assert.False(t, ok, "Decode(%q)", v)
		assert.Nil(t, got)
	}
}

func TestSessionCodec_WrongSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewSessionCodec("another-secret-that-is-32-chars-long!!", true)
	require.NoError(t, err)

	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	_, ok := other.Decode(cookie.Value)
	assert.False(t, ok)
}

func TestSessionCodec_ExpiredCookie(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Now().Add(-9 * time.Hour)
	codec.now = func() time.Time { return issued }

	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	codec.now = time.Now
	_, ok := codec.Decode(cookie.Value)
	assert.False(t, ok, "cookie older than SessionMaxAge must not decode")
}

func TestSessionCodec_AccessTokenExpiryIsAdvisory(t *testing.T) {
	codec := newTestCodec(t)
	s := testSession()
	s.ExpiresAt = time.Now().Add(-time.Hour).Unix()

	cookie, err := codec.Encode(s)
	require.NoError(t, err)

	got, ok := codec.Decode(cookie.Value)
	require.True(t, ok)
	assert.True(t, got.Expired(time.Now()))
}

func TestSessionCodec_FromRequest(t *testing.T) {
	codec := newTestCodec(t)
	cookie, err := codec.Encode(testSession())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	got, ok := codec.FromRequest(req)
	require.True(t, ok)
	assert.Equal(t, "radardev", got.User.Username)

	_, ok = codec.FromRequest(httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.False(t, ok)
}

func TestSessionCodec_Clear(t *testing.T) {
	codec := newTestCodec(t)
	cookie := codec.Clear()

	assert.Equal(t, SessionCookieName, cookie.Name)
	assert.Equal(t, "", cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
	assert.Equal(t, "/", cookie.Path)
}

func TestFlowCookies(t *testing.T) {
	c := FlowCookie(StateCookieName, "state-value", false)
	assert.Equal(t, 300, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	cleared := ClearFlowCookies(false)
	require.Len(t, cleared, 2)
	assert.Equal(t, StateCookieName, cleared[0].Name)
	assert.Equal(t, VerifierCookieName, cleared[1].Name)
	for _, c := range cleared {
		assert.Less(t, c.MaxAge, 0)
	}
}
