package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiration is the lifetime of an issued token
const DefaultExpiration = time.Hour

// ErrTokenGeneration is wrapped by every failure to load a key or sign a token
var ErrTokenGeneration = errors.New("token generation failed")

// LocalTokenManager signs logon tokens with a private key read from disk
type LocalTokenManager struct {
	issuer     string
	privateKey *rsa.PrivateKey
	now        func() time.Time
	expiration time.Duration
}

// Option configures a LocalTokenManager
type Option func(*LocalTokenManager)

// WithClock overrides the time source used for the exp claim
func WithClock(now func() time.Time) Option {
	return func(m *LocalTokenManager) {
		m.now = now
	}
}

// WithExpiration sets the token lifetime
func WithExpiration(d time.Duration) Option {
	return func(m *LocalTokenManager) {
		m.expiration = d
	}
}

// NewLocalTokenManager reads a PEM encoded RSA private key from keyPath
func NewLocalTokenManager(issuer, keyPath string, opts ...Option) (*LocalTokenManager, error) {
	pemData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read private key %s: %w", ErrTokenGeneration, keyPath, err)
	}
	return NewLocalTokenManagerFromPEM(issuer, pemData, opts...)
}

// NewLocalTokenManagerFromPEM parses a PKCS#1 or PKCS#8 RSA private key
func NewLocalTokenManagerFromPEM(issuer string, pemData []byte, opts ...Option) (*LocalTokenManager, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrTokenGeneration, err)
	}

	m := &LocalTokenManager{
		issuer:     issuer,
		privateKey: key,
		now:        time.Now,
		expiration: DefaultExpiration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue returns a signed RS256 token carrying the iss and exp claims
func (m *LocalTokenManager) Issue() (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": m.issuer,
		"exp": now.Add(m.expiration).Unix(),
	})

	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return signed, nil
}
