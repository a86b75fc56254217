package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/store"
)

func migrateCmd(cfgPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger and merchant tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				return fmt.Errorf("migrate: database.driver is memory; nothing to migrate")
			}
			ctx := context.Background()
			db, err := openDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)

			if !seed {
				return nil
			}
			ms, err := store.NewMerchants(db)
			if err != nil {
				return err
			}
			for _, m := range cfg.MerchantList() {
				if err := ms.Upsert(ctx, m); err != nil {
					return fmt.Errorf("seed merchant %s: %w", m.ShortID(), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d merchants\n", len(cfg.Merchants))
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Upsert the merchants listed in the config into the database")
	return cmd
}
