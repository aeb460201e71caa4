package session

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
)

const (
	sessionIDClaim = "sid"
	cookieSubject  = "session"
)

// Codec seals session IDs into cookie values.
// Uses PASETO v4.local (symmetric encryption with XChaCha20-Poly1305).
type Codec struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

func NewCodec(symmetricKey []byte, ttl time.Duration) (*Codec, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &Codec{
		symmetricKey: key,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Seal returns an encrypted token carrying sessionID that expires after the codec TTL
func (c *Codec) Seal(sessionID string) string {
	now := c.now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(c.ttl))
	token.SetSubject(cookieSubject)
	token.SetString(sessionIDClaim, sessionID)

	return token.V4Encrypt(c.symmetricKey, nil)
}

// Open decrypts a token made by Seal. Tampered, foreign and expired tokens
// all fail with ErrInvalidCookie.
func (c *Codec) Open(value string) (string, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.Subject(cookieSubject))

	token, err := parser.ParseV4Local(c.symmetricKey, value, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}

	sessionID, err := token.GetString(sessionIDClaim)
	if err != nil || sessionID == "" {
		return "", ErrInvalidCookie
	}

	return sessionID, nil
}

// TTL is how long sealed tokens, and the sessions behind them, stay valid
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
