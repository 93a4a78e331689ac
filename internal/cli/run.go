package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/checkrun/config"
	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/engine/emit"
	"github.com/dshills/checkrun/store"
)

func newRunCommand() *cobra.Command {
	var (
		targets       []string
		jsonLogs      bool
		timeout       time.Duration
		checkpointDB  string
		checkpointDSN string
		resumeSession string
		htmlReport    string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			mem, err := buildMemoryStore(cfg)
			if err != nil {
				return err
			}

			cost := engine.NewCostTracker("", "USD")
			gateway := buildGateway(cfg, cost)
			emitter := emit.NewLogEmitter(cmd.OutOrStderr(), jsonLogs)

			opts := cfg.ToEngineOptions()
			opts = append(opts, engine.WithCostTracker(cost))

			checkpoints, err := buildCheckpointStore(checkpointDB, checkpointDSN)
			if err != nil {
				return err
			}
			if checkpoints != nil {
				defer func() { _ = checkpoints.Close() }()
				opts = append(opts, engine.WithCheckpointStore(checkpoints))
			}
			if resumeSession != "" && checkpoints == nil {
				return fmt.Errorf("--resume requires --checkpoint-db or --checkpoint-dsn")
			}

			eng, err := engine.NewEngine(cfg.ToChecks(), gateway, mem, emitter, opts...)
			if err != nil {
				return fmt.Errorf("workflow: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var report *engine.RunReport
			if resumeSession != "" {
				report, err = eng.Resume(ctx, resumeSession, targets, engine.EventEnvelope{})
			} else {
				report, err = eng.ExecuteChecks(ctx, targets, engine.EventEnvelope{})
			}
			if err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}

			if mem.Flush() != nil {
				fmt.Fprintf(cmd.OutOrStderr(), "warning: failed to persist memory store\n")
			}

			printReport(cmd.OutOrStdout(), report)

			if htmlReport != "" {
				if err := writeHTMLReport(htmlReport, report); err != nil {
					fmt.Fprintf(cmd.OutOrStderr(), "warning: failed to write HTML report: %v\n", err)
				}
			}

			if report.HasCritical() {
				return fmt.Errorf("run completed with critical issues")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&targets, "target", nil, "run only the named checks plus the forward runs routing triggers (dependencies are not added)")
	cmd.Flags().BoolVar(&jsonLogs, "json", false, "emit JSONL events instead of text")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the run after this duration (the workflow's run budget still applies)")
	cmd.Flags().StringVar(&checkpointDB, "checkpoint-db", "", "persist journal and checkpoints to a SQLite file, enabling --resume")
	cmd.Flags().StringVar(&checkpointDSN, "checkpoint-dsn", "", "persist journal and checkpoints to MySQL (DSN), enabling --resume")
	cmd.Flags().StringVar(&resumeSession, "resume", "", "resume the given session from its last checkpoint")
	cmd.Flags().StringVar(&htmlReport, "report-html", "", "also write the run report as HTML to the given path")

	return cmd
}

// buildCheckpointStore picks the persistence backend from the mutually
// exclusive --checkpoint-db / --checkpoint-dsn flags; nil means in-memory
// only (no resume).
func buildCheckpointStore(sqlitePath, mysqlDSN string) (engine.CheckpointStore, error) {
	switch {
	case sqlitePath != "" && mysqlDSN != "":
		return nil, fmt.Errorf("--checkpoint-db and --checkpoint-dsn are mutually exclusive")
	case sqlitePath != "":
		return store.NewSQLiteStore(sqlitePath)
	case mysqlDSN != "":
		return store.NewMySQLStore(mysqlDSN)
	default:
		return nil, nil
	}
}

// writeHTMLReport renders the report's Markdown form to HTML for CI artifact
// consumption.
func writeHTMLReport(path string, report *engine.RunReport) error {
	html, err := reportHTML(report)
	if err != nil {
		return err
	}
	return os.WriteFile(path, html, 0o644)
}
