package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims follows the identity provider's access token layout: the role we care
// about lives in app_metadata, while the top-level "role" is usually the
// database role ("authenticated").
type Claims struct {
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
	UserRole string `json:"user_role,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ResolvedRole picks the first valid role claim, defaulting to customer.
func (c *Claims) ResolvedRole() Role {
	for _, r := range []string{c.AppMetadata.Role, c.UserRole, c.Role} {
		if Role(r).Valid() {
			return Role(r)
		}
	}
	return RoleCustomer
}

// Verifier validates HS256 access tokens issued with the shared project secret.
type Verifier struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

func NewVerifier(secret, issuer string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, logger: logger}
}

func (v *Verifier) Verify(tokenString string) (Context, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Context{}, ErrExpiredToken
		}
		v.logger.Debug("token rejected", zap.Error(err))
		return Context{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Context{}, ErrInvalidToken
	}
	if !claims.VerifyIssuer(v.issuer, v.issuer != "") {
		v.logger.Debug("token rejected", zap.String("issuer", claims.Issuer))
		return Context{}, ErrInvalidToken
	}
	return Context{PrincipalID: claims.Subject, Role: claims.ResolvedRole()}, nil
}

// Issue signs a token for principal. The API never mints tokens itself; this is
// used by tests and local tooling.
func (v *Verifier) Issue(principal string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	claims.AppMetadata.Role = string(role)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
