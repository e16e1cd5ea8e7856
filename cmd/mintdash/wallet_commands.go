package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/brojonat/mintdash/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// openKeyring is swapped out in tests.
var openKeyring = wallet.OpenKeyring

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Manage the wallet key stored in the local keyring",
		Subcommands: []*cli.Command{
			walletImportCommand(),
			walletGenerateCommand(),
			walletAddressCommand(),
			walletRemoveCommand(),
		},
	}
}

// keyringWallet opens the wallet selected by the global keyring flags.
func keyringWallet(c *cli.Context) (*wallet.KeyringWallet, error) {
	ring, err := openKeyring(wallet.KeyringConfig{
		ServiceName:  c.String("keyring-service"),
		FileDir:      c.String("keyring-dir"),
		FilePassword: c.String("keyring-password"),
	})
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return wallet.NewKeyringWallet(ring, c.String("wallet"), nil, logger), nil
}

func walletImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a secret key (base58 from stdin, or a solana-keygen JSON file)",
		ArgsUsage: "[KEYPAIR_FILE]",
		Action: func(c *cli.Context) error {
			w, err := keyringWallet(c)
			if err != nil {
				return err
			}

			var address solana.PublicKey
			if path := c.Args().First(); path != "" {
				address, err = w.ImportKeygenFile(path)
			} else {
				var secret string
				secret, err = readSecret(c.App.Reader)
				if err != nil {
					return err
				}
				address, err = w.Import(secret)
			}
			if err != nil {
				return fmt.Errorf("failed to import wallet: %w", err)
			}

			return printWalletAddress(c, "Imported wallet", address.String())
		},
	}
}

func walletGenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a new random key",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace an existing key",
			},
		},
		Action: func(c *cli.Context) error {
			w, err := keyringWallet(c)
			if err != nil {
				return err
			}

			if existing, err := w.Address(); err == nil && !c.Bool("force") {
				return fmt.Errorf("wallet %q already holds %s (use --force to replace it)", c.String("wallet"), existing)
			}

			address, err := w.Generate()
			if err != nil {
				return fmt.Errorf("failed to generate wallet: %w", err)
			}
			return printWalletAddress(c, "Generated wallet", address.String())
		},
	}
}

func walletAddressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Show the stored wallet's address",
		Action: func(c *cli.Context) error {
			w, err := keyringWallet(c)
			if err != nil {
				return err
			}

			address, err := w.Address()
			if err != nil {
				return fmt.Errorf("failed to read wallet: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"wallet": c.String("wallet"), "address": address.String()})
			}
			fmt.Fprintln(c.App.Writer, address.String())
			return nil
		},
	}
}

func walletRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:  "remove",
		Usage: "Delete the stored key",
		Action: func(c *cli.Context) error {
			w, err := keyringWallet(c)
			if err != nil {
				return err
			}

			if err := w.Remove(); err != nil {
				return fmt.Errorf("failed to remove wallet: %w", err)
			}
			if !c.Bool("json") {
				fmt.Fprintln(c.App.Writer, styleSuccess.Render(fmt.Sprintf("✓ Removed wallet %q", c.String("wallet"))))
			}
			return nil
		},
	}
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret key: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", fmt.Errorf("secret key is required on stdin")
	}
	return secret, nil
}

func printWalletAddress(c *cli.Context, label, address string) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, map[string]string{"wallet": c.String("wallet"), "address": address})
	}
	fmt.Fprintln(c.App.Writer, styleSuccess.Render("✓ "+label))
	fmt.Fprintf(c.App.Writer, "  Address: %s\n", styleAddress.Render(address))
	return nil
}
