package security

import (
	"context"
	"errors"
	"time"

	"accounts_api/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

// SessionClaims is the identity snapshot embedded in a session token.
// Role and identity fields reflect the user at issuance time; only the
// active flag is re-checked against the store on each request.
type SessionClaims struct {
	UserID   string
	Username string
	Email    string
	Role     string
}

func GenerateToken(c SessionClaims) (string, error) {
	return GenerateTokenWithTTL(c, config.AppConfig.JWTExp)
}

func GenerateTokenWithTTL(c SessionClaims, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  c.UserID,
		"username": c.Username,
		"email":    c.Email,
		"role":     c.Role,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// VerifyToken decodes and validates a token string (signature and expiry)
// and returns the embedded session claims. All-or-nothing: any failure
// yields no claims.
func VerifyToken(tokenString string) (SessionClaims, error) {
	token, err := jwtauth.VerifyToken(TokenAuth, tokenString)
	if err != nil {
		return SessionClaims{}, err
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return SessionClaims{}, err
	}
	return SessionClaimsFromMap(claims)
}

// SessionClaimsFromMap rebuilds SessionClaims from decoded claims, e.g.
// the map jwtauth.FromContext yields in middleware.
func SessionClaimsFromMap(claims map[string]interface{}) (SessionClaims, error) {
	c := SessionClaims{}
	var err error
	if c.UserID, err = stringClaim(claims, "user_id"); err != nil {
		return SessionClaims{}, err
	}
	if c.Username, err = stringClaim(claims, "username"); err != nil {
		return SessionClaims{}, err
	}
	if c.Email, err = stringClaim(claims, "email"); err != nil {
		return SessionClaims{}, err
	}
	if c.Role, err = stringClaim(claims, "role"); err != nil {
		return SessionClaims{}, err
	}
	return c, nil
}

func stringClaim(claims map[string]interface{}, key string) (string, error) {
	v, ok := claims[key].(string)
	if !ok || v == "" {
		return "", errors.New(key + " claim is missing or not a string")
	}
	return v, nil
}
