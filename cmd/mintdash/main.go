package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mintdash",
		Usage: "Solana token dashboard CLI",
		Description: `A command-line front end for the mintdash server.

Connect the server's wallet, create token mints, mint supply, send tokens,
and follow notifications. Wallet keys are managed locally with "mintdash wallet".`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			sessionCommands(),
			tokenCommands(),
			historyCommand(),
			notificationCommands(),
			walletCommands(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "mintdash server URL",
				EnvVars: []string{"MINTDASH_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:    "keyring-service",
				Usage:   "Keyring service name for wallet keys",
				EnvVars: []string{"KEYRING_SERVICE"},
				Value:   "mintdash",
			},
			&cli.StringFlag{
				Name:    "keyring-dir",
				Usage:   "Directory for the file keyring backend",
				EnvVars: []string{"KEYRING_DIR"},
			},
			&cli.StringFlag{
				Name:    "keyring-password",
				Usage:   "Password for the file keyring backend (prompted when empty)",
				EnvVars: []string{"KEYRING_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "wallet",
				Usage:   "Wallet name in the keyring",
				EnvVars: []string{"WALLET_NAME"},
				Value:   "default",
			},
		},
	}
}
