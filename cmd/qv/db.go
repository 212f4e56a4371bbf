package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/config"
	"github.com/zulandar/quickvocab/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the history database",
		Long:  "Creates the MySQL database if needed and migrates the history table. For sqlite the database file is created on first use.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		fmt.Fprintf(out, "Using sqlite database %s\n", cfg.Store.Path)
	case config.DriverMySQL:
		m := cfg.Store.MySQL
		adminDB, err := db.ConnectAdmin(m.User, m.Host, m.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", m.Host, m.Port, err)
		}
		defer db.Close(adminDB)
		fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", m.Host, m.Port)

		if err := db.CreateDatabase(adminDB, m.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", m.Database)
	default:
		fmt.Fprintf(out, "Store driver %q has no SQL schema; nothing to migrate.\n", cfg.Store.Driver)
		return nil
	}

	gormDB, err := db.Connect(cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nQuick Vocab database initialized successfully.")
	return nil
}
