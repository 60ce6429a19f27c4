package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

func TestParseRecord(t *testing.T) {
	rec, err := workflow.ParseRecord([]byte(`{
		"auth_id": 1042,
		"member_id": " W123456789 ",
		"patient_dob": "1980-01-02",
		"payer": "Aetna",
		"provider_name": "KOLLIPARA, ANURADHA",
		"provider_npi_id": 1234567890,
		"gender": null,
		"unknown_key": {"nested": true}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1042", rec.AuthID)
	assert.Equal(t, "W123456789", rec.MemberID)
	assert.Equal(t, "1234567890", rec.ProviderNPIID)
	assert.Empty(t, rec.Gender)
	assert.NoError(t, rec.Validate(workflow.KindEligibility))
}

func TestParseRecord_Rejects(t *testing.T) {
	for name, input := range map[string]string{
		"not json": `{"auth_id":`,
		"array":    `[1, 2]`,
		"string":   `"hello"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := workflow.ParseRecord([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestValidate_NamesEveryMissingField(t *testing.T) {
	rec := workflow.PatientRecord{MemberID: "W1", DiagnosisCode: "M54.5"}

	err := rec.Validate(workflow.KindPriorAuth)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrMissingFields)
	assert.Equal(t, "missing required fields: date_of_birth, procedure_code, from_date", err.Error())

	assert.Equal(t, []string{"provider_name", "patient_dob", "payer", "auth_id"}, rec.Missing(workflow.KindEligibility))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "07/17/2025", workflow.FormatDate("2025-07-17"))
	assert.Equal(t, "07/17/2025", workflow.FormatDate("07/17/2025"))
	assert.Equal(t, "2025-13-40", workflow.FormatDate("2025-13-40"))
	assert.Equal(t, "", workflow.FormatDate("  "))
}

func TestKind_ScriptType(t *testing.T) {
	assert.Equal(t, "aetna_prior_auth", workflow.KindPriorAuth.ScriptType())
	assert.Equal(t, "availity_eligibility", workflow.KindEligibility.ScriptType())
}
