package servicetoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"storyboard/internal/util"
)

const (
	// DefaultTokenTTL is the default lifetime for internal service tokens.
	DefaultTokenTTL = 60 * time.Second
	// DefaultLeeway is clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second
)

// Signer issues short-lived internal service JWTs signed with HS256.
// Workers use these to call the internal job endpoints.
type Signer struct {
	issuer string
	ttl    time.Duration
	secret []byte
}

// NewSigner creates an HS256 signer.
func NewSigner(issuer, secret string, ttl time.Duration) (*Signer, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	if len(secret) < 32 {
		return nil, errors.New("service token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{issuer: issuer, ttl: ttl, secret: []byte(secret)}, nil
}

// Sign issues a token for the given audience.
func (s *Signer) Sign(audience string) (string, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", errors.New("service token audience is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        util.NewID(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Verifier validates internal service JWTs against audience and issuer
// allowlist.
type Verifier struct {
	audience       string
	allowedIssuers map[string]struct{}
	leeway         time.Duration
	secret         []byte
}

// NewVerifier creates an HS256 verifier.
func NewVerifier(audience, secret string, allowedIssuers []string, leeway time.Duration) (*Verifier, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return nil, errors.New("service token audience is required")
	}
	if len(secret) < 32 {
		return nil, errors.New("service token secret must be at least 32 bytes")
	}
	issuers := make(map[string]struct{}, len(allowedIssuers))
	for _, issuer := range allowedIssuers {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			issuers[issuer] = struct{}{}
		}
	}
	if len(issuers) == 0 {
		return nil, errors.New("service token verifier requires at least one allowed issuer")
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{
		audience:       audience,
		allowedIssuers: issuers,
		leeway:         leeway,
		secret:         []byte(secret),
	}, nil
}

// Verify parses the token and returns the issuer on success.
func (v *Verifier) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", errors.New("service token is empty")
	}
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("parse service token: %w", err)
	}
	if _, ok := v.allowedIssuers[claims.Issuer]; !ok {
		return "", fmt.Errorf("issuer %q not allowed", claims.Issuer)
	}
	return claims.Issuer, nil
}

// FromRequest extracts the bearer token from the Authorization header.
func FromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
