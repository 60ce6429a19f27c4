package mfa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrInvalidToken is returned for a missing, malformed or expired operator token.
var ErrInvalidToken = errors.New("invalid or expired token")

// OperatorClaims identify the human allowed to submit codes.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

const tokenIssuer = "availity-rpa"

// IssueToken signs an HS256 operator token. A zero ttl issues a token
// without an expiry.
func IssueToken(secret, operator string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("operator secret is empty")
	}
	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  operator,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an operator token and returns its claims.
func ParseToken(secret, token string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type operatorKey struct{}

// OperatorFrom returns the operator name set by OperatorGuard.
func OperatorFrom(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operatorKey{}).(string)
	return op, ok
}

// OperatorGuard rejects requests without a valid "Bearer" operator token.
// An empty secret disables the check.
func OperatorGuard(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	log := logger.Named("operator_guard")
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w)
				return
			}
			claims, err := ParseToken(secret, raw)
			if err != nil {
				log.Debug("Rejected operator token", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), operatorKey{}, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="availity-rpa"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrInvalidToken.Error()})
}
