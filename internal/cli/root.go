package cli

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand builds the checkrun root command and its subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkrun",
		Short: "Dependency-aware check orchestration engine",
		Long: `checkrun executes a workflow of checks declared in a YAML file.

It resolves the dependency graph between checks, schedules them in bounded
parallel waves, and routes forward runs based on each check's on_success,
on_fail, and on_finish directives.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newGraphCommand())

	return cmd
}
