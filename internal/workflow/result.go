package workflow

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/availity-rpa/internal/classify"
)

// FinalResultPrefix starts the one stdout line a run reports its result on.
const FinalResultPrefix = "FINAL_RESULT: "

// ErrNoFinalResult is returned when a run's output carries no result line.
var ErrNoFinalResult = errors.New("no FINAL_RESULT line in output")

// EchoedRecord is the part of the input a successful run reports back.
type EchoedRecord struct {
	PatientID     string `json:"patient_id"`
	MemberID      string `json:"member_id"`
	AuthID        string `json:"auth_id"`
	ProcedureCode string `json:"procedure_code"`
	DiagnosisCode string `json:"diagnosis_code"`
	FromDate      string `json:"from_date"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        string `json:"gender"`
	PatientDOB    string `json:"patient_dob"`
	Payer         string `json:"payer"`
	ProviderName  string `json:"provider_name"`
	ProviderNPIID string `json:"provider_npi_id"`
}

// FinalResult is the payload of the FINAL_RESULT line. A failed run carries
// only Success and Error; a successful one flattens Record into the line.
type FinalResult struct {
	Success           bool
	Error             string
	Record            *EchoedRecord
	Message           string
	EligibilityResult *classify.Verdict
}

type failedPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type finalPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	EchoedRecord
	Message           string            `json:"message,omitempty"`
	EligibilityResult *classify.Verdict `json:"eligibility_result,omitempty"`
}

func (r FinalResult) MarshalJSON() ([]byte, error) {
	if r.Record == nil {
		return json.Marshal(failedPayload{Success: r.Success, Error: r.Error})
	}
	return json.Marshal(finalPayload{
		Success:           r.Success,
		Error:             r.Error,
		EchoedRecord:      *r.Record,
		Message:           r.Message,
		EligibilityResult: r.EligibilityResult,
	})
}

func (r *FinalResult) UnmarshalJSON(data []byte) error {
	var p finalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = FinalResult{Success: p.Success, Error: p.Error, Message: p.Message, EligibilityResult: p.EligibilityResult}
	if p.EchoedRecord != (EchoedRecord{}) {
		rec := p.EchoedRecord
		r.Record = &rec
	}
	return nil
}

// NewFinalResult builds the report of a finished run.
func NewFinalResult(rec PatientRecord, out Outcome) FinalResult {
	if !out.Success {
		msg := "workflow failed"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		return FinalResult{Error: msg}
	}
	dob := rec.PatientDOB
	if dob == "" {
		dob = rec.DateOfBirth
	}
	return FinalResult{
		Success: true,
		Record:  &EchoedRecord{
			PatientID:     rec.PatientID,
			MemberID:      rec.MemberID,
			AuthID:        rec.AuthID,
			ProcedureCode: rec.ProcedureCode,
			DiagnosisCode: rec.DiagnosisCode,
			FromDate:      rec.FromDate,
			FirstName:     rec.FirstName,
			LastName:      rec.LastName,
			Gender:        rec.Gender,
			PatientDOB:    dob,
			Payer:         rec.Payer,
			ProviderName:  rec.ProviderName,
			ProviderNPIID: rec.ProviderNPIID,
		},
		Message:           out.Message,
		EligibilityResult: out.Verdict,
	}
}

// FailedResult reports a run that never got to execute.
func FailedResult(err error) FinalResult {
	return FinalResult{Error: err.Error()}
}

// WriteFinalResult prints r as a single FINAL_RESULT line.
func WriteFinalResult(w io.Writer, r FinalResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding final result: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s%s\n", FinalResultPrefix, data)
	return err
}

// ParseFinalResult finds the last FINAL_RESULT line in a run's output.
func ParseFinalResult(output []byte) (FinalResult, error) {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	prefix := strings.TrimSpace(FinalResultPrefix)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			last = strings.TrimSpace(rest)
		}
	}
	if err := sc.Err(); err != nil {
		return FinalResult{}, fmt.Errorf("reading output: %w", err)
	}
	if last == "" {
		return FinalResult{}, ErrNoFinalResult
	}
	var r FinalResult
	if err := json.Unmarshal([]byte(last), &r); err != nil {
		return FinalResult{}, fmt.Errorf("decoding final result: %w", err)
	}
	return r, nil
}

// Flag is the eligibility tri-state the result carries, or -1.
func (r FinalResult) Flag() int {
	if r.EligibilityResult == nil {
		return classify.Unknown.Flag()
	}
	return r.EligibilityResult.Flag
}
