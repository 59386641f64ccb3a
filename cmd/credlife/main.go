// Command credlife runs the credential lifecycle service and its operational tasks.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "credlife",
		Usage: "Credential verification and lifecycle service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Optional dotenv file loaded before the environment",
				Value:   ".env",
				EnvVars: []string{"CREDLIFE_ENV_FILE"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			scanCommand,
			migrateCommand,
			tokenCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "credlife:", err)
		os.Exit(1)
	}
}
