package cli

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ostanin/quizpair/internal/config"
	"github.com/ostanin/quizpair/internal/server"
)

//go:embed schema.sql
var schema string

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c server.Config
			if err := config.Load(*configPath, &c); err != nil {
				return err
			}

			return migrate(cmd.Context(), c)
		},
	}
}

func migrate(ctx context.Context, c server.Config) error {
	if c.Postgres.Addr == "" {
		return fmt.Errorf("postgres not configured")
	}

	db, err := pgxpool.New(ctx, fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	slog.InfoContext(ctx, "migrate: schema applied", "database", c.Postgres.Name)
	return nil
}
