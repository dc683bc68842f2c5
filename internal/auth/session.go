package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidSessionToken is returned for any token that fails verification.
var ErrInvalidSessionToken = errors.New("auth: invalid session token")

// Session is the identity carried by a verified admin session token.
type Session struct {
	Shop   string
	UserID string
}

// SessionVerifier verifies admin session tokens: HS256 JWTs signed with the
// app secret whose audience is the app API key and whose dest claim names the
// shop.
type SessionVerifier struct {
	APIKey    string
	Secret    []byte
	ClockSkew time.Duration
	Now       func() time.Time
}

// Verify parses and validates the token, returning the session it carries.
func (v SessionVerifier) Verify(token string) (Session, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" || len(v.Secret) == 0 {
		return Session{}, ErrInvalidSessionToken
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if algorithm != jwa.HS256 {
		return Session{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidSessionToken, algorithm)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(now)),
		jwt.WithRequiredClaim("dest"),
		jwt.WithRequiredClaim(jwt.IssuerKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.APIKey != "" {
		options = append(options, jwt.WithAudience(v.APIKey))
	}
	parsed, err := jwt.ParseString(trimmed, options...)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	destClaim, _ := parsed.Get("dest")
	dest, _ := destClaim.(string)
	shop, err := shopHost(dest)
	if err != nil {
		return Session{}, fmt.Errorf("%w: dest: %v", ErrInvalidSessionToken, err)
	}
	issuerShop, err := shopHost(parsed.Issuer())
	if err != nil || issuerShop != shop {
		return Session{}, fmt.Errorf("%w: issuer does not match dest", ErrInvalidSessionToken)
	}
	return Session{Shop: shop, UserID: parsed.Subject()}, nil
}

func shopHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" || u.Hostname() == "" {
		return "", errors.New("expected https shop url")
	}
	return strings.ToLower(u.Hostname()), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("token missing algorithm")
	}
	return alg, nil
}
