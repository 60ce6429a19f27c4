// File: cmd/npi.go
package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/availity-rpa/internal/npi"
	"github.com/xkilldash9x/availity-rpa/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newNPICmd() *cobra.Command {
	var first, last string

	npiCmd := &cobra.Command{
		Use:   "npi [\"LAST, FIRST\"]",
		Short: "Looks a provider up in the NPI registry and prints the match as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			q := npi.Query{FirstName: strings.TrimSpace(first), LastName: strings.TrimSpace(last)}
			if len(args) == 1 {
				if q, err = npi.ParseFullName(args[0]); err != nil {
					return err
				}
			}

			lookup := &sessionLookup{cfg: cfg, logger: observability.GetLogger()}
			p, err := lookup.Lookup(ctx, q)
			if err != nil {
				return fmt.Errorf("npi lookup for %s, %s: %w", q.LastName, q.FirstName, err)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(p)
		},
	}
	npiCmd.Flags().StringVar(&first, "first", "", "provider first name")
	npiCmd.Flags().StringVar(&last, "last", "", "provider last name")
	return npiCmd
}
