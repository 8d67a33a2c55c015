package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreybb/horoscope/config"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "horoscope",
		Short: "Horoscope readings service",
		Long: `Serves on-demand horoscopes and fans a short daily reading out to every
active subscriber.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newDispatchCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, if configured, the daily schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newDispatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run the daily reading job once and print the summary",
		Long: `Run the daily reading job once, in the foreground, without the HTTP trigger.

Example:
  horoscope dispatch | jq .succeeded`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the subscriptions and daily_readings tables in Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				config.LoadDotEnv()
				databaseURL = os.Getenv("DB_CONNECTION_STRING")
			}
			if databaseURL == "" {
				return fmt.Errorf("no database: pass --db or set DB_CONNECTION_STRING")
			}
			return runMigrate(cmd.Context(), databaseURL)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "db", "", "Postgres connection string (default $DB_CONNECTION_STRING)")
	return cmd
}
