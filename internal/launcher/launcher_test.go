package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

// helperCommand runs TestHelperProcess in place of the real binary.
func helperCommand(mode string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--"}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd
	}
}

func newRunner(t *testing.T, mode string, timeout time.Duration) *Runner {
	t.Helper()
	r, err := New("/usr/bin/availity-rpa", timeout, zaptest.NewLogger(t), WithCommand(helperCommand(mode)))
	require.NoError(t, err)
	return r
}

func TestRun_ParsesResultAndPassesRecord(t *testing.T) {
	rec := workflow.PatientRecord{AuthID: "1042", MemberID: "W1"}
	rep, err := newRunner(t, "eligible", 0).Run(context.Background(), workflow.KindEligibility, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.ExitCode)
	assert.True(t, rep.Result.Success)
	assert.Equal(t, 1, rep.Result.Flag())
	require.NotNil(t, rep.Result.Record)
	assert.Equal(t, "W1", rep.Result.Record.MemberID, "the child echoes the record it was given")
}

func TestRun_FailedRunStillReports(t *testing.T) {
	rep, err := newRunner(t, "failed", 0).Run(context.Background(), workflow.KindPriorAuth, workflow.PatientRecord{AuthID: "7"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExitCode)
	assert.False(t, rep.Result.Success)
	assert.Equal(t, "step mfa: timed out", rep.Result.Error)
}

func TestRun_NoResultLine(t *testing.T) {
	_, err := newRunner(t, "crash", 0).Run(context.Background(), workflow.KindEligibility, workflow.PatientRecord{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.ErrorIs(t, err, workflow.ErrNoFinalResult)

	_, err = newRunner(t, "silent", 0).Run(context.Background(), workflow.KindEligibility, workflow.PatientRecord{})
	assert.ErrorIs(t, err, workflow.ErrNoFinalResult)
	assert.NotErrorIs(t, err, ErrRunFailed)
}

func TestRun_TimeoutKillsChild(t *testing.T) {
	start := time.Now()
	_, err := newRunner(t, "hang", 200*time.Millisecond).Run(context.Background(), workflow.KindEligibility, workflow.PatientRecord{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestHelperProcess stands in for the automation binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("HELPER_MODE") {
	case "eligible":
		rec, err := workflow.ParseRecord([]byte(args[1]))
		if err != nil || args[0] != "eligibility" {
			os.Exit(3)
		}
		fmt.Fprintln(os.Stderr, "2025-07-17T09:00:00Z INFO portal Signed in")
		fmt.Println("Checking for MFA challenge...")
		fmt.Printf("FINAL_RESULT: {\"success\":true,\"member_id\":%q,\"eligibility_result\":{\"status\":\"ACTIVE_COVERAGE\",\"flag\":1}}\n", rec.MemberID)
		os.Exit(0)
	case "failed":
		fmt.Println(`FINAL_RESULT: {"success":false,"error":"step mfa: timed out"}`)
		os.Exit(1)
	case "crash":
		fmt.Fprintln(os.Stderr, strings.Repeat("x", 10))
		os.Exit(2)
	case "silent":
		os.Exit(0)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	}
	os.Exit(0)
}
