// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/browser"
	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/mfa"
	"github.com/xkilldash9x/availity-rpa/internal/observability"
	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

// errRunFailed is returned after the failure FINAL_RESULT has been printed.
var errRunFailed = errors.New("automation run failed")

// page is one browser tab driven by a run.
type page interface {
	automation.Driver
	browser.Screenshotter
}

// openPage launches Chrome and opens a tab. The returned cleanup closes both.
// Replaced in tests.
var openPage = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (page, func(context.Context) error, error) {
	mgr, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	session, err := mgr.NewSession(ctx)
	if err != nil {
		_ = mgr.Shutdown(ctx)
		return nil, nil, err
	}
	cleanup := func(ctx context.Context) error {
		closeErr := session.Close(ctx)
		return errors.Join(closeErr, mgr.Shutdown(ctx))
	}
	return session, cleanup, nil
}

func newEligibilityCmd() *cobra.Command {
	return newRunCmd(workflow.KindEligibility, "Checks a patient's eligibility and classifies the coverage")
}

func newPriorAuthCmd() *cobra.Command {
	return newRunCmd(workflow.KindPriorAuth, "Submits an Aetna prior-authorization request")
}

// newRunCmd builds the command for one workflow. It takes the patient record
// as a single JSON argument and prints exactly one FINAL_RESULT line.
func newRunCmd(kind workflow.Kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " '<patient json>'",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			res, runErr := runAutomation(ctx, cfg, kind, []byte(args[0]))
			if err := workflow.WriteFinalResult(cmd.OutOrStdout(), res); err != nil {
				return errors.Join(runErr, err)
			}
			if runErr != nil {
				return fmt.Errorf("%w: %w", errRunFailed, runErr)
			}
			return nil
		},
	}
}

// runAutomation drives one workflow end to end. The FinalResult is always
// usable, even when err is set.
func runAutomation(ctx context.Context, cfg *config.Config, kind workflow.Kind, raw []byte) (workflow.FinalResult, error) {
	rec, err := workflow.ParseRecord(raw)
	if err != nil {
		return workflow.FailedResult(err), err
	}
	if err := rec.Validate(kind); err != nil {
		return workflow.FailedResult(err), err
	}

	started := time.Now()
	logPath, logErr := observability.AttachRunLog(cfg.Artifacts.LogDir, started)
	logger := observability.GetLogger().With(zap.String("workflow", string(kind)), zap.String("auth_id", rec.AuthID))
	if logErr != nil {
		logger.Warn("Per-run log file unavailable", zap.Error(logErr))
	} else {
		logger.Info("Run log attached", zap.String("path", logPath))
	}

	pg, closePage, err := openPage(ctx, cfg, logger)
	if err != nil {
		err = fmt.Errorf("failed to open browser: %w", err)
		logger.Error("Browser unavailable", zap.Error(err))
		return workflow.FailedResult(err), err
	}

	shots := browser.NewScreenshotRecorder(cfg.Artifacts.ScreenshotDir, pg, logger)
	codes := mfa.NewClient(cfg.MFA, kind.ScriptType(), logger)
	env := workflow.NewEnv(cfg, pg, codes, shots, logger)

	orch := workflow.NewOrchestrator(logger,
		workflow.WithTeardown(func(context.Context) error {
			observability.Sync()
			return nil
		}),
		workflow.WithTeardown(closePage),
		workflow.WithScreenshots(shots),
	)

	var wf workflow.Workflow
	switch kind {
	case workflow.KindPriorAuth:
		wf = workflow.NewPriorAuth(env, rec)
	default:
		wf = workflow.NewEligibility(env, rec)
	}

	out, err := orch.Run(ctx, wf)
	return workflow.NewFinalResult(rec, out), err
}
