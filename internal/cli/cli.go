// Package cli implements vynctl, the operator tool for the dialer.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ProductBay/vynce/internal/app"
	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/config"
	"github.com/ProductBay/vynce/internal/csvimport"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/phone"
)

// BuildCLI assembles the command tree.
func BuildCLI() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "vynctl",
		Short:         "Operator tooling for the Vynce dialer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "config file path")

	root.AddCommand(buildNormalizeCommand())
	root.AddCommand(buildCSVCommand())
	root.AddCommand(buildTokenCommand(&configFile))
	root.AddCommand(buildMigrateCommand(&configFile))
	return root
}

func buildNormalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize NUMBER...",
		Short: "Print the E.164 form of each number",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return normalize(cmd.OutOrStdout(), args)
		},
	}
}

func normalize(w io.Writer, numbers []string) error {
	failed := 0
	for _, raw := range numbers {
		n, err := phone.Normalize(raw)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s\tinvalid: %v\n", raw, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", raw, n)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d numbers could not be normalized", failed, len(numbers))
	}
	return nil
}

// csvReport is the YAML view of a dry-run import.
type csvReport struct {
	File       string                `yaml:"file"`
	Rows       int                   `yaml:"rows"`
	Accepted   int                   `yaml:"accepted"`
	Rejected   int                   `yaml:"rejected"`
	Rejections []csvimport.Rejection `yaml:"rejections,omitempty"`
	Numbers    []string              `yaml:"numbers,omitempty"`
}

func buildCSVCommand() *cobra.Command {
	var maxRows int
	var listNumbers bool

	cmd := &cobra.Command{
		Use:   "csv FILE",
		Short: "Dry-run a contact sheet through the bulk importer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return inspectCSV(cmd.OutOrStdout(), f, filepath.Base(args[0]), maxRows, listNumbers)
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "reject sheets with more data rows (0 means unlimited)")
	cmd.Flags().BoolVar(&listNumbers, "numbers", false, "list every accepted number")
	return cmd
}

func inspectCSV(w io.Writer, r io.Reader, name string, maxRows int, listNumbers bool) error {
	res, err := csvimport.Parse(r, csvimport.Options{Source: name, MaxRows: maxRows})
	if res == nil {
		return err
	}

	report := csvReport{
		File:       name,
		Rows:       res.Rows,
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
		Rejections: res.Rejections,
	}
	if listNumbers {
		for _, e := range res.Entries {
			report.Numbers = append(report.Numbers, e.Number)
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}
	if encErr := enc.Close(); encErr != nil {
		return encErr
	}
	return err
}

func buildTokenCommand(configFile *string) *cobra.Command {
	var email, role, userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			return mintToken(cmd.OutOrStdout(), cfg.Auth, userID, email, domain.Role(role), time.Now())
		},
	}
	cmd.Flags().StringVar(&email, "email", "operator@vynce.local", "email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "role claim: customer, admin or superadmin")
	cmd.Flags().StringVar(&userID, "user-id", "", "subject user id (random when empty)")
	return cmd
}

func mintToken(w io.Writer, cfg config.AuthConfig, userID, email string, role domain.Role, now time.Time) error {
	switch role {
	case domain.RoleCustomer, domain.RoleAdmin, domain.RoleSuperAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	id := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		id = parsed
	}

	tokens, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}
	pair, err := tokens.IssuePair(now, &domain.User{ID: id, Email: email, Role: role})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, pair.AccessToken)
	return err
}

func buildMigrateCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres and Scylla schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			container, err := app.Build(ctx, *configFile)
			if err != nil {
				return err
			}
			defer container.Close(context.Background())

			if err := container.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
