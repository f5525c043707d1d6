package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

const issuer = "daybook"

type Claims struct {
	jwt.RegisteredClaims
}

// Verifier issues and checks HS256 bearer tokens and resolves the admin
// flag through the policy.
type Verifier struct {
	secret []byte
	policy Policy
	now    func() time.Time
}

func NewVerifier(secret string, policy Policy) *Verifier {
	return &Verifier{secret: []byte(secret), policy: policy, now: time.Now}
}

// Issue signs a token for subject valid for ttl.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("issue token: empty subject")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the caller it identifies.
func (v *Verifier) Verify(token string) (AuthContext, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthContext{}, ErrTokenExpired
		}
		return AuthContext{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return AuthContext{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return AuthContext{
		Subject: claims.Subject,
		Admin:   v.policy != nil && v.policy.IsAdmin(claims.Subject),
	}, nil
}
