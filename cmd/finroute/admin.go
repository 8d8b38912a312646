package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/store"
)

// openStore loads the config and opens the responder database, seeding it from
// the config file when empty.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, errors.New("responder changes need a database: set db_path or FINROUTE_DB")
	}
	_, st, err := openProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open responder store: %w", err)
	}
	return st, nil
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *store.Store) error) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st)
}

func responderSetCmd() *cobra.Command {
	var rc config.ResponderConfig
	var priority int
	var inactive bool

	cmd := &cobra.Command{
		Use:   "set [id]",
		Short: "Add or update a stored responder",
		Long: `Writes a responder to the database. A running server picks the change
	up on POST /v1/responders/reload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc.ID = args[0]
			if cmd.Flags().Changed("priority") {
				rc.Priority = &priority
			}
			active := !inactive
			rc.Active = &active
			if err := rc.Validate(); err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, st *store.Store) error {
				d := rc.Descriptor()
				if err := st.UpsertResponder(ctx, d); err != nil {
					return err
				}
				fmt.Printf("Stored %s (%s, priority %d, active %t)\n", d.ID, d.Kind, d.StaticPriority, d.Active)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rc.Name, "name", "", "display name")
	cmd.Flags().StringVar(&rc.Kind, "kind", "", "capability kind (tax, accounting, forecast, compliance, audit, report, general)")
	cmd.Flags().IntVar(&priority, "priority", 0, "static priority")
	cmd.Flags().StringSliceVar(&rc.Jurisdictions, "jurisdictions", nil, "jurisdiction affinity codes")
	cmd.Flags().StringVar(&rc.Adapter, "adapter", "", "adapter name")
	cmd.Flags().StringVar(&rc.Model, "model", "", "model or alias")
	cmd.Flags().StringVar(&rc.Endpoint, "endpoint", "", "HTTP endpoint of a remote responder")
	cmd.Flags().StringVar(&rc.SystemPrompt, "system-prompt", "", "system prompt")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "store the responder as inactive")
	return cmd
}

func responderActiveCmd(use string, active bool) *cobra.Command {
	short := "Activate a stored responder"
	if !active {
		short = "Deactivate a stored responder"
	}
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st *store.Store) error {
				if err := st.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Printf("%s active=%t\n", args[0], active)
				return nil
			})
		},
	}
}

func responderRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Delete a stored responder (its history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st *store.Store) error {
				if err := st.DeleteResponder(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	}
}
