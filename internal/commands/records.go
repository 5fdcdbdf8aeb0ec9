package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talentscout/internal/app"
	"talentscout/internal/crypto"
	"talentscout/internal/services"
)

func newViewCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "view [candidate_id]",
		Short: "Print a decrypted candidate record",
		Args:  candidateIDArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				rec, err := a.Records.GetDecrypted(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}
}

func newExportCmd(open Opener) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [candidate_id]",
		Short: "Export a candidate record",
		Long:  `Export a candidate record as json, csv or xlsx. Writes to stdout unless --output is set.`,
		Args:  candidateIDArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := services.ParseExportFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				data, err := a.Records.Export(ctx, args[0], f)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "✅ Exported %s to %s\n", args[0], output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json, csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newDeleteCmd(open Opener) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete [candidate_id]",
		Short: "Erase a candidate record",
		Args:  candidateIDArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := a.Records.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted candidate: %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion")
	return cmd
}

func newAuditCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [candidate_id]",
		Short: "Print the audit trail for a candidate",
		Args:  candidateIDArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				entries, err := a.Records.AuditTrail(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintf(out, "No audit entries for %s\n", args[0])
					return nil
				}
				for _, e := range entries {
					line := fmt.Sprintf("%s  %-16s", e.Timestamp.UTC().Format(time.RFC3339), e.Action)
					if e.Detail != "" {
						line += "  " + e.Detail
					}
					fmt.Fprintln(out, strings.TrimRight(line, " "))
				}
				return nil
			})
		},
	}
}

func newLookupCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [email]",
		Short: "Find candidate ids by email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				ids, err := a.Records.FindByEmail(ctx, args[0])
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return fmt.Errorf("%w: no candidate with that email", services.ErrNotFound)
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newPurgeCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every record past its retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				purged, err := a.Records.PurgeExpired(ctx, time.Now().UTC())
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d records\n", purged)
				return err
			})
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ENCRYPTION_KEY",
		Long: `Generate a random 32-byte master key in hex. Store it in a secret manager.
Losing the key makes every stored record unreadable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
