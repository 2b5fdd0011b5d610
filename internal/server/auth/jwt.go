// Package auth issues and verifies the signed credentials (HS256 JWTs) that
// authenticate both HTTP requests and live channel handshakes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every token and required on verification.
const Issuer = "gophchat"

// Claims is the decoded credential: the standard registered claims plus the
// identity of the user it was issued to.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Expiry returns the expires-at instant, or the zero time if the claim has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func GenerateToken(user *models.User, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies signature, algorithm, issuer and expiry. Expired tokens
// yield common.ErrTokenExpired; every other failure wraps common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Verifier binds the signing secret and token lifetime used by the server.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secretKey string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secretKey), ttl: ttl}
}

// Issue mints a credential for user.
func (v *Verifier) Issue(user *models.User) (string, error) {
	return GenerateToken(user, v.secret, v.ttl)
}

// Verify decodes a credential presented by a client.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}
	return ParseToken(token, v.secret)
}

func (v *Verifier) TTL() time.Duration {
	return v.ttl
}
