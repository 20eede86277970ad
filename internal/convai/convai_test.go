package convai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(SignerConfig{
		BaseURL: "wss://convai.example/ws",
		Issuer:  "seven-days-calm",
		AgentID: "agent-1",
		Secret:  []byte("test-secret"),
		TTL:     5 * time.Minute,
		Now:     fixedClock(now),
	})
	require.NoError(t, err)
	return s
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)
	day := 4

	sess, err := s.Issue("alice", &day)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), sess.ExpiresAt)
	require.NotNil(t, sess.ChallengeDay)
	assert.Equal(t, 4, *sess.ChallengeDay)

	u, err := url.Parse(sess.URL)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "4", u.Query().Get("day"))

	token, err := TokenFromURL(sess.URL)
	require.NoError(t, err)
	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "agent-1", claims.AgentID)
	require.NotNil(t, claims.ChallengeDay)
	assert.Equal(t, 4, *claims.ChallengeDay)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueWithoutDay(t *testing.T) {
	s := newTestSigner(t, time.Now())
	sess, err := s.Issue("alice", nil)
	require.NoError(t, err)
	assert.Nil(t, sess.ChallengeDay)

	u, err := url.Parse(sess.URL)
	require.NoError(t, err)
	assert.Equal(t, "", u.Query().Get("day"))

	token, _ := TokenFromURL(sess.URL)
	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ChallengeDay)
}

func TestTokensAreUnique(t *testing.T) {
	s := newTestSigner(t, time.Now())
	a, err := s.Issue("alice", nil)
	require.NoError(t, err)
	b, err := s.Issue("alice", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.URL, b.URL)
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Now()
	s := newTestSigner(t, issued)
	sess, err := s.Issue("alice", nil)
	require.NoError(t, err)
	token, _ := TokenFromURL(sess.URL)

	later := newTestSigner(t, issued.Add(6*time.Minute))
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	s := newTestSigner(t, time.Now())
	sess, err := s.Issue("alice", nil)
	require.NoError(t, err)
	token, _ := TokenFromURL(sess.URL)

	other, err := NewSigner(SignerConfig{BaseURL: "wss://x", Secret: []byte("other")})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = s.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewSignerRequiresBase(t *testing.T) {
	_, err := NewSigner(SignerConfig{})
	assert.Error(t, err)
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"", nil},
		{"0", nil},
		{"-2", nil},
		{"abc", nil},
		{"3", intPtr(3)},
		{" 12 ", intPtr(12)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDay(tt.in), "input %q", tt.in)
	}
}

func intPtr(v int) *int { return &v }

func TestClientFetchSignedURL(t *testing.T) {
	var gotUser, gotOrigin, gotDay string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		gotOrigin = r.Header.Get("Origin")
		gotDay = r.URL.Query().Get("challenge_day")
		day := 2
		_ = json.NewEncoder(w).Encode(SignedURLResponse{
			OK: true, URL: "wss://convai.example/ws?token=t&day=2",
			ExpiresAt: time.Now().Add(time.Minute), ChallengeDay: &day,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithUserID("alice"), WithOrigin("https://calm.example"))
	day := 2
	resp, err := c.FetchSignedURL(context.Background(), &day)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "https://calm.example", gotOrigin)
	assert.Equal(t, "2", gotDay)
	require.NotNil(t, resp.ChallengeDay)
	assert.Equal(t, 2, *resp.ChallengeDay)
}

func TestClientForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Origin not allowed"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchSignedURL(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrOriginNotAllowed))
}

func TestClientCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL).FetchSignedURL(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
