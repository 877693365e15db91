package cli

import (
	"fmt"

	"github.com/harrisonrobin/taskflow/pkg/config"
	"github.com/harrisonrobin/taskflow/pkg/gateway/postgres"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in ~/.config/taskflow/config.yaml.

Keys: database_url, cache_path, provider (local or google), calendar,
listen, locale.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the task tables, policies and change trigger",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s set\n", args[0])
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if useMemory {
		return fmt.Errorf("the in-process store needs no migration")
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	pg, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return configError(err)
	}
	defer pg.Close()
	if err := pg.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
	return nil
}
