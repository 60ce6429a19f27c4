// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/availity-rpa/internal/mfa"
	"github.com/xkilldash9x/availity-rpa/internal/npi"
)

// -- MFA Session Store Mock --

// MockSessionStore mocks the mfa.Store interface.
type MockSessionStore struct {
	mock.Mock
}

var _ mfa.Store = (*MockSessionStore)(nil)

func (m *MockSessionStore) Create(ctx context.Context, scriptType string) (mfa.Session, error) {
	args := m.Called(ctx, scriptType)
	return args.Get(0).(mfa.Session), args.Error(1)
}

func (m *MockSessionStore) Submit(ctx context.Context, id, code string) error {
	args := m.Called(ctx, id, code)
	return args.Error(0)
}

func (m *MockSessionStore) Check(ctx context.Context, id string) (mfa.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mfa.Session), args.Error(1)
}

func (m *MockSessionStore) Pending(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// -- NPI Mocks --

// MockLookup mocks the npi.Lookup interface.
type MockLookup struct {
	mock.Mock
}

var _ npi.Lookup = (*MockLookup)(nil)

func (m *MockLookup) Lookup(ctx context.Context, q npi.Query) (npi.Provider, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(npi.Provider), args.Error(1)
}

// MockProviderRecorder mocks the npi.ProviderRecorder interface.
type MockProviderRecorder struct {
	mock.Mock
}

var _ npi.ProviderRecorder = (*MockProviderRecorder)(nil)

func (m *MockProviderRecorder) UpsertProvider(ctx context.Context, first, last, number, name string) (int64, error) {
	args := m.Called(ctx, first, last, number, name)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProviderRecorder) SetNPIValidationStatus(ctx context.Context, authID string, providerID int64, status string) error {
	args := m.Called(ctx, authID, providerID, status)
	return args.Error(0)
}

// MockProviderValidator mocks the provider check the API routes to.
type MockProviderValidator struct {
	mock.Mock
}

func (m *MockProviderValidator) Validate(ctx context.Context, q npi.Query, authID string) (npi.Result, error) {
	args := m.Called(ctx, q, authID)
	return args.Get(0).(npi.Result), args.Error(1)
}
