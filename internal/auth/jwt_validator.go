package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Token verification failures. Callers map all of them to 401.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenAlgorithm = errors.New("auth: unexpected token algorithm")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenRejected  = errors.New("auth: token rejected")
)

// TokenValidator verifies signed access tokens issued by this service.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Verify checks the signature and claims of raw and returns its subject.
func (v TokenValidator) Verify(raw string, key []byte, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrTokenMalformed
	}
	alg, err := signingAlgorithm(raw)
	if err != nil {
		return "", err
	}
	want := v.Algorithm
	if want == "" {
		want = jwa.HS256
	}
	if alg != want {
		return "", fmt.Errorf("%w: %s", ErrTokenAlgorithm, alg)
	}

	tok, err := jwt.ParseString(raw, jwt.WithKey(alg, key), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if err := v.validateClaims(tok, now); err != nil {
		return "", err
	}
	return tok.Subject(), nil
}

func (v TokenValidator) validateClaims(tok jwt.Token, now time.Time) error {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	err := jwt.Validate(tok, opts...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired()):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
}

// signingAlgorithm reads the alg header without trusting it. Unsigned and
// multi-signature tokens are refused.
func signingAlgorithm(raw string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", fmt.Errorf("%w: expected one signature, got %d", ErrTokenMalformed, len(sigs))
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", fmt.Errorf("%w: missing alg header", ErrTokenMalformed)
	}
	if headers.Algorithm() == jwa.NoSignature {
		return "", fmt.Errorf("%w: none", ErrTokenAlgorithm)
	}
	return headers.Algorithm(), nil
}
