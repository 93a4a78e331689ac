// Command checkrun runs YAML-defined check workflows: dependency-ordered,
// bounded-parallel, with retry/routing between checks.
package main

import (
	"fmt"
	"os"

	"github.com/dshills/checkrun/internal/cli"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Version = version
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
