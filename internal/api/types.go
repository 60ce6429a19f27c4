package api

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/availity-rpa/internal/launcher"
	"github.com/xkilldash9x/availity-rpa/internal/npi"
	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunStore is the slice of the database the run triggers touch. store.Store
// implements it.
type RunStore interface {
	EligibilityInput(ctx context.Context, authID string) (workflow.PatientRecord, error)
	PriorAuthInput(ctx context.Context, authID string) (workflow.PatientRecord, error)
	SetInsuranceValidation(ctx context.Context, authID string, flag int) error
	SetAuthStatus(ctx context.Context, authID, status string) error
	AuthStatus(ctx context.Context, authID string) (string, error)
}

// Launcher runs one automation. launcher.Runner implements it.
type Launcher interface {
	Run(ctx context.Context, kind workflow.Kind, rec workflow.PatientRecord) (launcher.Report, error)
}

// ProviderValidator checks a provider against the NPI registry. npi.Service
// implements it.
type ProviderValidator interface {
	Validate(ctx context.Context, q npi.Query, authID string) (npi.Result, error)
}

// ID decodes from either a JSON string or a number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = ID(strings.TrimSpace(t))
	case float64:
		*id = ID(strings.TrimSpace(string(data)))
	default:
		*id = ""
	}
	return nil
}

// AuthRequest is the body of both run triggers.
type AuthRequest struct {
	AuthID ID `json:"auth_id"`
}

// NPIRequest names a provider either as first/last or as "LAST, FIRST".
type NPIRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ProviderName string `json:"provider_name"`
	AuthID       ID     `json:"auth_id"`
}

// EligibilityResponse wraps the child's FINAL_RESULT.
type EligibilityResponse struct {
	Message string               `json:"message"`
	Result  workflow.FinalResult `json:"result"`
}
