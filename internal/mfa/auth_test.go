package mfa_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/mfa"
)

func TestIssueAndParseToken(t *testing.T) {
	tok, err := mfa.IssueToken(secret, "alice", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := mfa.ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "alice", claims.Subject)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := mfa.IssueToken(secret, "alice", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired": expired,
		"garbage": "not.a.jwt",
		"empty":   "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := mfa.ParseToken(secret, tok)
			assert.ErrorIs(t, err, mfa.ErrInvalidToken)
		})
	}
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := mfa.IssueToken("", "alice", 0, time.Now())
	assert.Error(t, err)
}

func TestOperatorGuard_SetsOperator(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = mfa.OperatorFrom(r.Context())
	})
	h := mfa.OperatorGuard(secret, zaptest.NewLogger(t))(next)

	tok, err := mfa.IssueToken(secret, "bob", 0, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/mfa-pending", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "bob", seen)
}

func TestOperatorGuard_DisabledWithoutSecret(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	h := mfa.OperatorGuard("", zaptest.NewLogger(t))(next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)

	_, ok := mfa.OperatorFrom(context.Background())
	assert.False(t, ok)
}
