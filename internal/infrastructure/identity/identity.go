package identity

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	chat "dormlink/internal/pkg/chat/application/domain"
)

var (
	// ErrUnauthenticated covers missing, malformed, expired, or forged tokens.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
)

// Identity is a resolved caller: which user, on which side of the marketplace.
type Identity struct {
	UserID string
	Role   chat.Role
}

// Sender returns the identity as a message sender.
func (i Identity) Sender() chat.Sender {
	return chat.Sender{Role: i.Role, ID: i.UserID}
}

// claims mirrors the token shape issued by the auth service: {id, type}.
type claims struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Resolver verifies bearer tokens and extracts the caller identity. Credential
// issuance lives with the auth service; this side only validates.
type Resolver struct {
	secret []byte
}

// NewResolver constructs a Resolver around the given HMAC secret.
func NewResolver(secret []byte) (*Resolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity: empty signing secret")
	}
	return &Resolver{secret: secret}, nil
}

// NewResolverFromEnv constructs a Resolver from the JWT_SECRET env var.
func NewResolverFromEnv() (*Resolver, error) {
	return NewResolver([]byte(os.Getenv("JWT_SECRET")))
}

// Resolve parses and verifies a raw token, returning the caller identity.
func (r *Resolver) Resolve(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}

	role := chat.Role(c.Type)
	if c.ID == "" || !role.Valid() {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: c.ID, Role: role}, nil
}

// Issue signs a token for the identity. Used by tests and local tooling; the
// production issuer is the auth service.
func (r *Resolver) Issue(id Identity, ttl time.Duration) (string, error) {
	c := claims{
		ID:   id.UserID,
		Type: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(r.secret)
}
