package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/checkrun/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow file without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			// Load already runs config.Validate(); resolving the dependency
			// graph additionally catches cycles and unknown dependencies.
			if _, err := newResolverFor(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d check(s)\n", args[0], len(cfg.Checks))
			return nil
		},
	}
}
