// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Keys is an ed25519 signing pair.
type Keys struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateKeys creates a fresh key pair at runtime. Tokens signed with it do
// not survive a restart.
func GenerateKeys() (Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return Keys{Private: priv, Public: pub}, nil
}

// LoadKeys reads raw ed25519 keys from file. With both paths empty a new pair
// is generated. The private key is optional for a verify-only deployment.
func LoadKeys(privatePath, publicPath string) (Keys, error) {
	if privatePath == "" && publicPath == "" {
		return GenerateKeys()
	}
	if publicPath == "" {
		return Keys{}, fmt.Errorf("public key path is required when a private key is given")
	}

	var keys Keys
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(publicKeyData) != ed25519.PublicKeySize {
		return Keys{}, fmt.Errorf("public key file %s: want %d bytes, got %d", publicPath, ed25519.PublicKeySize, len(publicKeyData))
	}
	keys.Public = ed25519.PublicKey(publicKeyData)

	if privatePath != "" {
		privateKeyData, err := os.ReadFile(privatePath)
		if err != nil {
			return Keys{}, fmt.Errorf("failed to read private key file: %w", err)
		}
		if len(privateKeyData) != ed25519.PrivateKeySize {
			return Keys{}, fmt.Errorf("private key file %s: want %d bytes, got %d", privatePath, ed25519.PrivateKeySize, len(privateKeyData))
		}
		keys.Private = ed25519.PrivateKey(privateKeyData)
	}
	return keys, nil
}

// Verifier checks tokens issued by the account service.
type Verifier struct {
	public ed25519.PublicKey
}

// NewVerifier returns a verifier for tokens signed by the matching private key.
func NewVerifier(public ed25519.PublicKey) *Verifier {
	return &Verifier{public: public}
}

// VerifyToken validates a JWT and returns the player ID in its "sub" claim.
// Every failure wraps models.ErrUnauthenticated.
func (v *Verifier) VerifyToken(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, fmt.Errorf("missing token: %w", models.ErrUnauthenticated)
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.public, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %v: %w", err, models.ErrUnauthenticated)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", models.ErrUnauthenticated)
	}

	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("missing sub in jwt: %w", models.ErrUnauthenticated)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("sub %q is not a player id: %w", sub, models.ErrUnauthenticated)
	}
	return id, nil
}

// Issuer signs tokens. The server only verifies; issuing is used by tooling
// and tests.
type Issuer struct {
	private ed25519.PrivateKey
	ttl     time.Duration
}

// NewIssuer returns an issuer. A ttl of zero issues tokens without "exp".
func NewIssuer(private ed25519.PrivateKey, ttl time.Duration) *Issuer {
	return &Issuer{private: private, ttl: ttl}
}

// CreateJWT creates a signed token with "sub" = userID.
func (i *Issuer) CreateJWT(userID uuid.UUID) (string, error) {
	if i.private == nil {
		return "", fmt.Errorf("issuer has no private key")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if i.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.private)
}
