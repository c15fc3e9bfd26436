package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const DefaultJWKSCacheTTL = 15 * time.Minute

// AuthConfig selects how bearer tokens are verified. A non-empty TestSecret
// switches verification to HS256 with that shared secret; otherwise tokens
// must be RS256 and signed by a key from JWKS.
type AuthConfig struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	TestSecret  []byte
	KeyCacheTTL time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testMode   bool
	testSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(cfg AuthConfig) (*Auth, error) {
	a := &Auth{
		jwks:        cfg.JWKS,
		audience:    cfg.Audience,
		issuer:      cfg.Issuer,
		keyCacheTTL: cfg.KeyCacheTTL,
	}
	if a.keyCacheTTL < 0 {
		return nil, fmt.Errorf("invalid key cache ttl %v", cfg.KeyCacheTTL)
	}
	if len(cfg.TestSecret) > 0 {
		a.testMode = true
		a.testSecret = cfg.TestSecret
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
		return a, nil
	}
	if cfg.JWKS == nil {
		return nil, errors.New("jwks is required unless a test secret is set")
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	return a, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies a raw bearer token and returns its subject.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}

	var parsedToken *jwt.Token
	var err error
	if a.testMode {
		parsedToken, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.testSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(token, a.keyForToken)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
