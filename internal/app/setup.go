package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loftcrm/mailsync/internal/storage"
)

var setupCmd = &cobra.Command{
	Use:   "setup <workspace-id> <schema-name>",
	Short: "Provision a workspace schema",
	Long:  "Registers the workspace and creates its schema with all tables and uniqueness constraints the sync engine depends on. Safe to re-run.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid workspace id: %w", err)
		}
		schemaName := args[1]

		ctx := context.Background()
		connString := viper.GetString("database.url")
		if connString == "" {
			return fmt.Errorf("database.url not configured")
		}

		store, err := storage.New(ctx, connString)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer store.Close()

		if err := store.ProvisionWorkspace(ctx, workspaceID, schemaName); err != nil {
			return err
		}

		fmt.Printf("workspace %s provisioned in schema %s\n", workspaceID, schemaName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
