package workflow_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/availity-rpa/internal/classify"
	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

func TestWriteFinalResult_Success(t *testing.T) {
	active := true
	verdict := classify.Verdict{Status: classify.ActiveCoverage, Flag: 1, Success: &active, Location: "iframe_1"}
	rec := workflow.PatientRecord{AuthID: "A-1", MemberID: "W1", DateOfBirth: "1980-01-02"}
	out := workflow.Outcome{Success: true, Verdict: &verdict}

	var buf bytes.Buffer
	require.NoError(t, workflow.WriteFinalResult(&buf, workflow.NewFinalResult(rec, out)))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, workflow.FinalResultPrefix))
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Contains(t, line, `"member_id":"W1"`)
	assert.Contains(t, line, `"patient_dob":"1980-01-02"`)
	assert.Contains(t, line, `"eligibility_result":{`)

	got, err := workflow.ParseFinalResult(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 1, got.Flag())
	require.NotNil(t, got.Record)
	assert.Equal(t, "A-1", got.Record.AuthID)
}

func TestWriteFinalResult_FailureCarriesOnlyError(t *testing.T) {
	out := workflow.Outcome{Err: errors.New("step mfa: timed out")}
	var buf bytes.Buffer
	require.NoError(t, workflow.WriteFinalResult(&buf, workflow.NewFinalResult(workflow.PatientRecord{MemberID: "W1"}, out)))

	assert.Equal(t, workflow.FinalResultPrefix+`{"success":false,"error":"step mfa: timed out"}`+"\n", buf.String())

	got, err := workflow.ParseFinalResult(buf.Bytes())
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, -1, got.Flag())
}

func TestParseFinalResult_LastLineAmidNoise(t *testing.T) {
	output := strings.Join([]string{
		"Checking for MFA challenge...",
		`FINAL_RESULT: {"success":false,"error":"first"}`,
		"2025-07-17T09:00:00Z INFO portal Signed in",
		`  FINAL_RESULT: {"success":true,"eligibility_result":{"status":"MEMBER_INACTIVE","flag":0}}  `,
		"",
	}, "\n")

	got, err := workflow.ParseFinalResult([]byte(output))
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 0, got.Flag())
}

func TestParseFinalResult_Errors(t *testing.T) {
	_, err := workflow.ParseFinalResult([]byte("no result here\n"))
	assert.ErrorIs(t, err, workflow.ErrNoFinalResult)

	_, err = workflow.ParseFinalResult([]byte("FINAL_RESULT: {not json}\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, workflow.ErrNoFinalResult)
}

func TestFinalResult_RoundTrip(t *testing.T) {
	inactive := false
	verdict := classify.Verdict{
		Status:          classify.MemberInactive,
		Message:         "Member is inactive",
		Flag:            0,
		Success:         &inactive,
		DetectionMethod: classify.ByText,
		Location:        "iframe_0",
	}
	rec := workflow.PatientRecord{
		AuthID:        "1042",
		PatientID:     "P-9",
		MemberID:      "W123456789",
		PatientDOB:    "02/14/1980",
		FirstName:     "JANE",
		LastName:      "DOE",
		Payer:         "Aetna",
		ProviderName:  "KOLLIPARA, ANURADHA",
		ProviderNPIID: "1234567890",
	}
	want := workflow.NewFinalResult(rec, workflow.Outcome{Success: true, Message: "Member is inactive", Verdict: &verdict})

	var buf bytes.Buffer
	require.NoError(t, workflow.WriteFinalResult(&buf, want))
	got, err := workflow.ParseFinalResult(buf.Bytes())
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FinalResult round trip mismatch (-want +got):\n%s", diff)
	}
}
