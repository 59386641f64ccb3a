package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"credlife/internal/platform/config"
	"credlife/internal/platform/database"
	"credlife/internal/platform/logger"
	"credlife/migrations"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply or roll back database migrations",
	Subcommands: []*cli.Command{
		{
			Name:   "up",
			Usage:  "Apply every pending migration",
			Action: runMigrate(database.Up),
		},
		{
			Name:  "down",
			Usage: "Roll back migrations",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "steps", Value: 1, Usage: "Number of migrations to roll back; 0 rolls back all"},
			},
			Action: runMigrate(database.Down),
		},
	},
}

func runMigrate(dir database.Direction) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load(cCtx.String("env-file"))
		if err != nil {
			return err
		}
		log := logger.New(cfg.Server.LogLevel)

		pool, err := database.New(cCtx.Context, cfg.Database)
		if err != nil {
			return err
		}
		if pool == nil {
			return errors.New(config.Prefix + "_DATABASE_URL is required to migrate")
		}
		defer pool.Close() //nolint:errcheck // process exits right after

		status, err := database.Migrate(pool.DB(), migrations.FS, dir, cCtx.Int("steps"), log)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t changed=%t\n", status.Version, status.Dirty, status.Changed)
		return nil
	}
}
