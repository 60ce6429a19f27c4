package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMissingFields is returned when a record lacks a field its workflow needs.
var ErrMissingFields = errors.New("missing required fields")

// Kind names a workflow.
type Kind string

const (
	KindEligibility Kind = "eligibility"
	KindPriorAuth   Kind = "priorauth"
)

// ScriptType is the label the run reports to the MFA backend.
func (k Kind) ScriptType() string {
	switch k {
	case KindPriorAuth:
		return "aetna_prior_auth"
	default:
		return "availity_eligibility"
	}
}

// PatientRecord is the flat input of one run. It is never modified once parsed.
type PatientRecord struct {
	AuthID           string `json:"auth_id"`
	PatientID        string `json:"patient_id"`
	MemberID         string `json:"member_id"`
	PatientDOB       string `json:"patient_dob"`
	DateOfBirth      string `json:"date_of_birth"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	PatientName      string `json:"patient_name"`
	Gender           string `json:"gender"`
	ProviderName     string `json:"provider_name"`
	ProviderNPIID    string `json:"provider_npi_id"`
	NPINumber        string `json:"npi_number"`
	ProcedureCode    string `json:"procedure_code"`
	DiagnosisCode    string `json:"diagnosis_code"`
	FromDate         string `json:"from_date"`
	ToDate           string `json:"to_date"`
	Payer            string `json:"payer"`
	PrimaryInsurance string `json:"primary_insurance"`
}

// ParseRecord decodes the JSON argument of a run. Numbers are accepted
// wherever a string is expected, since the backend sends ids either way.
func ParseRecord(data []byte) (PatientRecord, error) {
	root := json.Get(data)
	if err := root.LastError(); err != nil {
		return PatientRecord{}, fmt.Errorf("parsing input JSON: %w", err)
	}
	if root.ValueType() != jsoniter.ObjectValue {
		return PatientRecord{}, errors.New("parsing input JSON: expected an object")
	}
	field := func(key string) string {
		v := root.Get(key)
		switch v.ValueType() {
		case jsoniter.StringValue, jsoniter.NumberValue, jsoniter.BoolValue:
			return strings.TrimSpace(v.ToString())
		default:
			return ""
		}
	}
	return PatientRecord{
		AuthID:           field("auth_id"),
		PatientID:        field("patient_id"),
		MemberID:         field("member_id"),
		PatientDOB:       field("patient_dob"),
		DateOfBirth:      field("date_of_birth"),
		FirstName:        field("first_name"),
		LastName:         field("last_name"),
		PatientName:      field("patient_name"),
		Gender:           field("gender"),
		ProviderName:     field("provider_name"),
		ProviderNPIID:    field("provider_npi_id"),
		NPINumber:        field("npi_number"),
		ProcedureCode:    field("procedure_code"),
		DiagnosisCode:    field("diagnosis_code"),
		FromDate:         field("from_date"),
		ToDate:           field("to_date"),
		Payer:            field("payer"),
		PrimaryInsurance: field("primary_insurance"),
	}, nil
}

// RequiredFields lists the JSON keys a workflow cannot run without.
func RequiredFields(k Kind) []string {
	switch k {
	case KindPriorAuth:
		return []string{"member_id", "date_of_birth", "procedure_code", "diagnosis_code", "from_date"}
	default:
		return []string{"provider_name", "member_id", "patient_dob", "payer", "auth_id"}
	}
}

func (r PatientRecord) value(key string) string {
	switch key {
	case "auth_id":
		return r.AuthID
	case "member_id":
		return r.MemberID
	case "patient_dob":
		return r.PatientDOB
	case "date_of_birth":
		return r.DateOfBirth
	case "provider_name":
		return r.ProviderName
	case "procedure_code":
		return r.ProcedureCode
	case "diagnosis_code":
		return r.DiagnosisCode
	case "from_date":
		return r.FromDate
	case "payer":
		return r.Payer
	}
	return ""
}

// Missing returns the required keys that are empty, in declaration order.
func (r PatientRecord) Missing(k Kind) []string {
	var out []string
	for _, key := range RequiredFields(k) {
		if r.value(key) == "" {
			out = append(out, key)
		}
	}
	return out
}

// Validate fails with ErrMissingFields naming every empty required key.
func (r PatientRecord) Validate(k Kind) error {
	if missing := r.Missing(k); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

// FormatDate turns YYYY-MM-DD into the portal's MM/DD/YYYY. Anything else is
// returned unchanged.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 10 && strings.Contains(s, "-") {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.Format("01/02/2006")
		}
	}
	return s
}
