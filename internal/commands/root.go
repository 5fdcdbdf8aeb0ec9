package commands

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"talentscout/internal/app"
	"talentscout/internal/config"
	"talentscout/internal/logging"
	"talentscout/internal/services"
)

// Opener wires the application for one command and returns its cleanup.
type Opener func(ctx context.Context) (*app.App, func(), error)

// OpenFromEnv loads .env and the environment and wires the configured store.
func OpenFromEnv(ctx context.Context) (*app.App, func(), error) {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(cfg.Environment, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { a.Close(context.Background()) }, nil
}

// NewRootCmd builds the privacyctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "privacyctl",
		Short: "Operate on stored candidate records",
		Long: `privacyctl runs data-subject and retention operations against the
configured candidate store, using the same key and audit log as the server.

Commands:
  view <candidate_id>      Print the decrypted record
  export <candidate_id>    Export the record as json, csv or xlsx
  delete <candidate_id>    Erase the record (audit trail is kept)
  audit <candidate_id>     Print the audit trail
  lookup <email>           Find candidate ids by email
  purge                    Delete every record past its retention window
  keygen                   Generate a new ENCRYPTION_KEY

Config: environment variables or .env in the working directory`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newViewCmd(open),
		newExportCmd(open),
		newDeleteCmd(open),
		newAuditCmd(open),
		newLookupCmd(open),
		newPurgeCmd(open),
		newKeygenCmd(),
	)
	return root
}

// withApp opens the application for the duration of fn
func withApp(cmd *cobra.Command, open Opener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, cleanup, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer cleanup()

	return fn(ctx, a)
}

// candidateIDArg requires exactly one well-formed candidate id
func candidateIDArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	return services.ValidateCandidateID(args[0])
}
