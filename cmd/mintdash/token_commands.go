package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

func tokenCommands() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Token mint and transfer commands",
		Subcommands: []*cli.Command{
			tokenCreateCommand(),
			tokenMintCommand(),
			tokenSendCommand(),
			tokenInfoCommand(),
			tokenAccountsCommand(),
			tokenRecentCommand(),
		},
	}
}

func tokenCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new token mint owned by the connected wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "name",
				Aliases:  []string{"n"},
				Usage:    "Token name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "symbol",
				Usage:    "Token symbol (at most 10 characters)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "decimals",
				Aliases: []string{"d"},
				Usage:   "Decimal precision (0-9)",
				Value:   "9",
			},
		},
		Action: func(c *cli.Context) error {
			res, err := newClient(c).CreateMint(c.Context, c.String("name"), c.String("symbol"), c.String("decimals"))
			if err != nil {
				return fmt.Errorf("failed to create token: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, res)
			}
			printResult(c.App.Writer, res)
			return nil
		},
	}
}

func tokenMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Mint supply into the connected wallet",
		ArgsUsage: "MINT_ADDRESS AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("mint address and amount are required")
			}

			res, err := newClient(c).MintSupply(c.Context, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to mint tokens: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, res)
			}
			printResult(c.App.Writer, res)
			return nil
		},
	}
}

func tokenSendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send tokens from the connected wallet",
		ArgsUsage: "MINT_ADDRESS RECIPIENT AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("mint address, recipient and amount are required")
			}

			res, err := newClient(c).Send(c.Context, c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return fmt.Errorf("failed to send tokens: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, res)
			}
			printResult(c.App.Writer, res)
			return nil
		},
	}
}

func tokenInfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show mint metadata",
		ArgsUsage: "MINT_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint address is required")
			}

			m, err := newClient(c).GetMint(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get mint: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, m)
			}

			fmt.Fprintf(w, "Mint:             %s\n", styleAddress.Render(m.Address))
			fmt.Fprintf(w, "Decimals:         %d\n", m.Decimals)
			fmt.Fprintf(w, "Supply:           %s\n", styleValue.Render(m.Supply.String()))
			fmt.Fprintf(w, "Mint Authority:   %s\n", formatOptionalAddress(m.MintAuthority))
			fmt.Fprintf(w, "Freeze Authority: %s\n", formatOptionalAddress(m.FreezeAuthority))
			return nil
		},
	}
}

func tokenAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "List the connected wallet's token balances",
		Action: func(c *cli.Context) error {
			accounts, err := newClient(c).TokenAccounts(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list token accounts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, accounts)
			}

			if len(accounts) == 0 {
				fmt.Fprintln(c.App.Writer, "No token accounts found")
				return nil
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MINT\tBALANCE\tDECIMALS")
			for _, a := range accounts {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", a.Mint, a.UIBalance.String(), a.Decimals)
			}
			return tw.Flush()
		},
	}
}

func tokenRecentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List recently used mints",
		Action: func(c *cli.Context) error {
			mints, err := newClient(c).RecentMints(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list recent mints: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, mints)
			}

			if len(mints) == 0 {
				fmt.Fprintln(c.App.Writer, "No recent mints")
				return nil
			}
			for i, m := range mints {
				fmt.Fprintf(c.App.Writer, "%d. %s\n", i+1, styleAddress.Render(m))
			}
			return nil
		},
	}
}

// formatOptionalAddress renders an optional authority.
func formatOptionalAddress(addr *string) string {
	if addr != nil && *addr != "" {
		return styleAddress.Render(*addr)
	}
	return styleMeta.Render("(none)")
}
