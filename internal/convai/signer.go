// Package convai issues and fetches signed session URLs for the voice widget.
package convai

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// DefaultTTL is how long a signed URL stays valid.
const DefaultTTL = 5 * time.Minute

// Errors returned by Verify.
var (
	ErrTokenInvalid = errors.New("session token invalid")
	ErrTokenExpired = errors.New("session token expired")
)

// SignerConfig defines how session tokens are minted.
type SignerConfig struct {
	BaseURL string
	Issuer  string
	AgentID string
	Secret  []byte
	TTL     time.Duration
	Now     func() time.Time
}

// Claims are the validated contents of a session token.
type Claims struct {
	UserID       string
	AgentID      string
	ChallengeDay *int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ID           string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	AgentID      string `json:"agent_id,omitempty"`
	ChallengeDay *int   `json:"challenge_day,omitempty"`
}

// Signer mints HS256 session tokens and wraps them in widget URLs.
type Signer struct {
	cfg SignerConfig
}

// NewSigner validates cfg. An empty secret is replaced by a random per-process
// key, so tokens from a previous run stop verifying after restart.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("signed url base is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse signed url base: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	return &Signer{cfg: cfg}, nil
}

// Issue returns a signed session for userID. A nil day is left out of both the
// token and the URL.
func (s *Signer) Issue(userID string, day *int) (domain.SignedSession, error) {
	now := s.cfg.Now().UTC()
	exp := now.Add(s.cfg.TTL)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		AgentID:      s.cfg.AgentID,
		ChallengeDay: day,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return domain.SignedSession{}, fmt.Errorf("sign session token: %w", err)
	}

	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return domain.SignedSession{}, fmt.Errorf("parse signed url base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	if day != nil {
		q.Set("day", strconv.Itoa(*day))
	} else {
		q.Set("day", "")
	}
	u.RawQuery = q.Encode()

	return domain.SignedSession{
		URL:          u.String(),
		ExpiresAt:    exp,
		ChallengeDay: day,
	}, nil
}

// Verify checks a token minted by this signer.
func (s *Signer) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenInvalid
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if s.cfg.Issuer != "" && parsed.Issuer != s.cfg.Issuer {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}

	out := Claims{
		UserID:       parsed.Subject,
		AgentID:      parsed.AgentID,
		ChallengeDay: parsed.ChallengeDay,
		ID:           parsed.ID,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Time
	}
	return out, nil
}

// TokenFromURL extracts the token query parameter from a signed URL.
func TokenFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse signed url: %w", err)
	}
	return u.Query().Get("token"), nil
}

// ParseDay reads the optional challenge_day query value. Anything that is not
// a positive integer means "no day".
func ParseDay(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
