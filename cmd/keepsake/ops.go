package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"keepsake/internal/bootstrap"
	"keepsake/internal/platform/config"
	"keepsake/internal/platform/logger"
	id "keepsake/pkg/domain"
	authmw "keepsake/pkg/platform/middleware/auth"
	"keepsake/pkg/requestcontext"
)

// withApp loads configuration, builds the services and runs fn. Operator
// commands need DATABASE_URL; against in-memory stores they would act on
// nothing.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for operator commands")
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "text")

	ctx := cmd.Context()
	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// operatorContext marks ctx as an admin acting on behalf of operator, the
// same way the HTTP auth middleware does.
func operatorContext(ctx context.Context, raw string) (context.Context, id.OwnerID, error) {
	operator, err := id.ParseOwnerID(raw)
	if err != nil {
		return nil, id.OwnerID{}, fmt.Errorf("--operator: %w", err)
	}
	ctx = requestcontext.WithOwnerID(ctx, operator)
	ctx = requestcontext.WithRole(ctx, authmw.RoleAdmin)
	return ctx, operator, nil
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one liveness sweep over every monitored vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				report, err := app.Liveness.Sweep(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd, "", report)
			})
		},
	}
}

func newTriggerCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "trigger VAULT_ID",
		Short: "Force a vault into TRIGGERED and release it to its beneficiaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultID, err := id.ParseVaultID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				ctx, op, err := operatorContext(ctx, operator)
				if err != nil {
					return err
				}
				v, err := app.Liveness.TriggerNow(ctx, vaultID, op)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "vault %s is %s\n", v.ID, v.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Operator ID recorded in the audit trail")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "token BENEFICIARY_ID",
		Short: "Issue a fresh release link to a beneficiary of a triggered vault",
		Long: `Issue a fresh release link to a beneficiary of a triggered vault.

The link is sent through the configured notifier. It is never printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				ctx, _, err := operatorContext(ctx, operator)
				if err != nil {
					return err
				}
				grant, err := app.Release.IssueReleaseToken(ctx, beneficiaryID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "release link sent to beneficiary %s, valid until %s\n",
					grant.BeneficiaryID, grant.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Operator ID recorded in the audit trail")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
