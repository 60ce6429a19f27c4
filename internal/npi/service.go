package npi

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Validation outcomes written to the prescrubbing record.
const (
	ValidationPass = "PASS"
	ValidationFail = "FAIL"
)

// ProviderRecorder persists registry hits. store.Store implements it.
type ProviderRecorder interface {
	UpsertProvider(ctx context.Context, first, last, npi, name string) (int64, error)
	SetNPIValidationStatus(ctx context.Context, authID string, providerID int64, status string) error
}

// Result is what a validation reports back to the caller.
type Result struct {
	Status     string    `json:"status"`
	ProviderID *int64    `json:"provider_id"`
	Provider   *Provider `json:"provider,omitempty"`
}

// Service ties a Lookup to the provider records.
type Service struct {
	lookup Lookup
	store  ProviderRecorder
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(lookup Lookup, store ProviderRecorder, logger *zap.Logger) *Service {
	return &Service{lookup: lookup, store: store, logger: logger.Named("npi")}
}

// Validate looks q up, upserts the provider and marks authID PASS or FAIL. A
// name the registry does not know is a FAIL result, not an error.
func (s *Service) Validate(ctx context.Context, q Query, authID string) (Result, error) {
	p, err := s.lookup.Lookup(ctx, q)
	if errors.Is(err, ErrNoResults) {
		if authID != "" {
			if err := s.store.SetNPIValidationStatus(ctx, authID, 0, ValidationFail); err != nil {
				return Result{}, fmt.Errorf("recording failed validation: %w", err)
			}
		}
		return Result{Status: ValidationFail}, nil
	}
	if err != nil {
		return Result{}, err
	}

	id, err := s.store.UpsertProvider(ctx, q.FirstName, q.LastName, p.NPI, p.Name)
	if err != nil {
		return Result{}, fmt.Errorf("saving provider: %w", err)
	}
	if authID != "" {
		if err := s.store.SetNPIValidationStatus(ctx, authID, id, ValidationPass); err != nil {
			return Result{}, fmt.Errorf("recording validation: %w", err)
		}
	}
	s.logger.Info("Provider validated", zap.Int64("provider_id", id), zap.String("auth_id", authID))
	return Result{Status: ValidationPass, ProviderID: &id, Provider: &p}, nil
}
