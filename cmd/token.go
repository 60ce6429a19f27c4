// File: cmd/token.go
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/availity-rpa/internal/mfa"
)

// now is replaced in tests.
var now = time.Now

func newTokenCmd() *cobra.Command {
	var operator string
	var ttl time.Duration

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issues an operator token for the MFA and run-trigger routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.MFA.OperatorSecret == "" {
				return errors.New("mfa.operator_secret is not configured (AVAILITY_RPA_OPERATOR_SECRET)")
			}
			tok, err := mfa.IssueToken(cfg.MFA.OperatorSecret, operator, ttl, now())
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	tokenCmd.Flags().StringVar(&operator, "operator", "", "name recorded in the token subject")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("operator")
	return tokenCmd
}
