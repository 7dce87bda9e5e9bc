// Package auth verifies Firebase ID tokens via JWKS and validates issuer/audience.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway = 30 * time.Second

	// FirebaseJWKSURL serves the public keys that sign Firebase ID tokens.
	FirebaseJWKSURL   = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	firebaseIssuerFmt = "https://securetoken.google.com/%s"
)

// Verifier validates Firebase ID tokens against a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifierFromEnv initializes a verifier from FIREBASE_PROJECT_ID, with an
// optional FIREBASE_JWKS_URL override.
func NewVerifierFromEnv() (*Verifier, error) {
	projectID := strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID"))
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID must be set")
	}
	return NewFirebaseVerifier(projectID, strings.TrimSpace(os.Getenv("FIREBASE_JWKS_URL")))
}

// NewFirebaseVerifier builds a verifier for ID tokens minted for projectID.
func NewFirebaseVerifier(projectID, jwksURL string) (*Verifier, error) {
	if projectID == "" {
		return nil, errors.New("project id must be set")
	}
	if jwksURL == "" {
		jwksURL = FirebaseJWKSURL
	}
	return NewVerifier(fmt.Sprintf(firebaseIssuerFmt, projectID), projectID, jwksURL)
}

// NewVerifier builds a verifier for an arbitrary issuer/audience pair.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
	)

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   parser,
	}, nil
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:       readString(mapClaims, "sub"),
		Issuer:        readString(mapClaims, "iss"),
		Audience:      readAudience(mapClaims["aud"]),
		ExpiresAt:     readExpiry(mapClaims["exp"]),
		Email:         strings.ToLower(readString(mapClaims, "email")),
		EmailVerified: readBool(mapClaims, "email_verified"),
		Raw:           mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func readBool(claims jwt.MapClaims, key string) bool {
	b, _ := claims[key].(bool)
	return b
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// AuthDisabled reports whether auth should be skipped for local development.
func AuthDisabled() bool {
	if !strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		return false
	}
	return strings.EqualFold(os.Getenv("ENV"), "local") || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == ""
}
