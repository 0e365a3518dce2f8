package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
	"github.com/ericfisherdev/credpool/internal/export"
)

// schemaVersioner is implemented by stores that track migrations.
type schemaVersioner interface {
	SchemaVersion() (uint, bool, error)
}

// NewMigrateCommand opens the store, which applies pending migrations, and
// reports the resulting schema version.
func NewMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withStore(cmd.Context(), func(store driven.CredentialStore) error {
				v, ok := store.(schemaVersioner)
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return nil
				}

				version, dirty, err := v.SchemaVersion()
				if err != nil {
					return err
				}
				if dirty {
					return fmt.Errorf("schema version %d is dirty", version)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations applied, schema version %d\n", version)
				return nil
			})
		},
	}
}

// NewListCommand prints one page of live credentials without secrets.
func NewListCommand(env *Env) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live credentials ordered by priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withStore(cmd.Context(), func(store driven.CredentialStore) error {
				res, err := store.List(cmd.Context(), page, pageSize)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPRIORITY\tAUTH\tDISABLED\tFAILURES\tEXPIRES")
				for _, c := range res.Items {
					expires := "-"
					if c.ExpiresAt != nil {
						expires = c.ExpiresAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%d\t%s\t%t\t%d\t%s\n",
						c.ID, c.Priority, c.AuthMethod, c.Disabled, c.FailureCount, expires)
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", res.Page, res.TotalPages, res.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-indexed)")
	cmd.Flags().IntVar(&pageSize, "page-size", model.DefaultPageSize, "Items per page")
	return cmd
}

// importItem is one credential in an import file. Export files use the same
// keys, so an export can be imported into another store.
type importItem struct {
	RefreshToken string `json:"refreshToken"`
	AuthMethod   string `json:"authMethod"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Priority     int    `json:"priority"`
	Region       string `json:"region"`
	MachineID    string `json:"machineId"`
}

// NewImportCommand creates credentials from a JSON array file.
func NewImportCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import credentials from a JSON array",
		Long: `Import credentials from a JSON array of objects with refreshToken,
authMethod, clientId, clientSecret, priority, region, and machineId keys.
Items are created independently; invalid items are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			var items []importItem
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("parse import file: %w", err)
			}

			specs := make([]model.CreateSpec, len(items))
			for i, it := range items {
				method, err := model.ParseAuthMethod(it.AuthMethod)
				if err != nil {
					// Left as given so the store reports it against this item.
					method = model.AuthMethod(it.AuthMethod)
				}
				specs[i] = model.CreateSpec{
					RefreshToken: it.RefreshToken,
					AuthMethod:   method,
					ClientID:     it.ClientID,
					ClientSecret: it.ClientSecret,
					Priority:     it.Priority,
					Region:       it.Region,
					MachineID:    it.MachineID,
				}
			}

			return env.withStore(cmd.Context(), func(store driven.CredentialStore) error {
				res, err := store.BatchCreate(cmd.Context(), specs)
				if err != nil {
					return err
				}
				printBatch(cmd.OutOrStdout(), "imported", res, func(e model.BatchItemError) string {
					return "item " + strconv.Itoa(e.Index)
				})
				return nil
			})
		},
	}
}

// NewDeleteCommand tombstones credentials by id.
func NewDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete credentials by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid credential id %q", a)
				}
				ids = append(ids, id)
			}

			return env.withStore(cmd.Context(), func(store driven.CredentialStore) error {
				res, err := store.BatchDelete(cmd.Context(), ids)
				if err != nil {
					return err
				}
				printBatch(cmd.OutOrStdout(), "deleted", res, func(e model.BatchItemError) string {
					return "id " + strconv.FormatInt(e.ID, 10)
				})
				return nil
			})
		},
	}
}

// NewExportCommand writes every live credential as JSON or CSV.
func NewExportCommand(env *Env) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export live credentials, including secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			return env.withStore(cmd.Context(), func(store driven.CredentialStore) error {
				records, err := store.ExportAll(cmd.Context())
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if out != "" {
					file, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
					if err != nil {
						return fmt.Errorf("open export file: %w", err)
					}
					defer file.Close()
					w = file
				}

				if err := export.Write(w, f, records); err != nil {
					return err
				}
				env.Logger.Info("credentials exported", "count", len(records), "format", f)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or csv")
	cmd.Flags().StringVar(&out, "out", "", "Write to file instead of stdout")
	return cmd
}

func printBatch(w io.Writer, verb string, res model.BatchResult, label func(model.BatchItemError) string) {
	fmt.Fprintf(w, "%s %d, failed %d\n", verb, res.Succeeded, res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s: %s\n", label(e), e.Message)
	}
}
