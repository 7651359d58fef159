package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"nudge/internal/app"
)

func main() {
	// Optional .env for local development; real deployments use the
	// config file plus the process environment.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "nudge",
		Short:         "scheduled, timezone-aware push notification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start the engine and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfgPath, false)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return a.Stop(context.Background())
		},
	}

	var dryRun bool
	triggerCmd := &cobra.Command{
		Use:   "trigger <job>",
		Short: "run one job tick immediately and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfgPath, dryRun)
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background()) }()

			report, err := a.TriggerJob(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("eligible=%d unique=%d sent=%d pruned=%d transient=%d\n",
				report.Eligible, report.Unique, report.Sent, report.Pruned, report.Transient)
			return nil
		},
	}
	triggerCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log sends instead of calling the gateway")

	root.AddCommand(runCmd, triggerCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
