package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultStateTTL = 10 * time.Minute

var (
	errMissingStateSecret = errors.New("auth: state signing secret required")
	// ErrInvalidState indicates an OAuth state value that is missing, forged,
	// or expired.
	ErrInvalidState = errors.New("auth: invalid oauth state")
)

// StateSignerConfig configures the OAuth state signer.
type StateSignerConfig struct {
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Clock         func() time.Time
}

// StateSigner issues and verifies short-lived HS256 state tokens for the
// login redirect, binding callback requests to a flow this server started.
type StateSigner struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewStateSigner constructs a StateSigner with sane defaults.
func NewStateSigner(cfg StateSignerConfig) (*StateSigner, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingStateSecret
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "melodiary-auth"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &StateSigner{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Sign produces a fresh state token.
func (s *StateSigner) Sign() (string, error) {
	now := s.clock().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingSecret)
}

// Verify checks a state token returned by the provider callback.
func (s *StateSigner) Verify(state string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		state,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.signingSecret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
