package cli

import (
	"fmt"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/spf13/cobra"

	"github.com/dshills/checkrun/config"
	"github.com/dshills/checkrun/engine"
)

// newResolverFor builds and validates an engine.Resolver from a parsed
// workflow, surfacing cycle/unknown-dependency errors ahead of execution.
func newResolverFor(cfg *config.Config) (*engine.Resolver, error) {
	resolver, err := engine.NewResolver(cfg.ToChecks())
	if err != nil {
		return nil, err
	}
	if err := resolver.Validate(); err != nil {
		return nil, err
	}
	return resolver, nil
}

func newGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <workflow.yaml>",
		Short: "Print the workflow's dependency graph as an ASCII tree, grouped by wave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			resolver, err := newResolverFor(cfg)
			if err != nil {
				return err
			}

			waves := resolver.Waves()
			root := tree.NewTree(tree.NodeString(fmt.Sprintf("%s (%d waves)", args[0], len(waves))))
			for i, wave := range waves {
				waveNode := root.AddChild(tree.NodeString(fmt.Sprintf("wave %d", i)))
				for _, id := range wave {
					check, _ := resolver.Check(id)
					label := id
					if check != nil && check.Provider != "" {
						label = fmt.Sprintf("%s [%s]", id, check.Provider)
					}
					waveNode.AddChild(tree.NodeString(label))
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), root.String())
			return nil
		},
	}
}
