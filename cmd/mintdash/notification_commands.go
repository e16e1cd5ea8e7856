package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/mintdash/client"
	"github.com/urfave/cli/v2"
)

func notificationCommands() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Notification commands",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the current notification",
				Action: func(c *cli.Context) error {
					n, err := newClient(c).Notification(c.Context)
					if err != nil {
						return fmt.Errorf("failed to get notification: %w", err)
					}
					if c.Bool("json") {
						return outputJSON(c.App.Writer, n)
					}
					if n == nil {
						fmt.Fprintln(c.App.Writer, styleMeta.Render("No notification"))
						return nil
					}
					printNotification(c.App.Writer, *n)
					return nil
				},
			},
			{
				Name:  "dismiss",
				Usage: "Clear the current notification",
				Action: func(c *cli.Context) error {
					if err := newClient(c).DismissNotification(c.Context); err != nil {
						return fmt.Errorf("failed to dismiss notification: %w", err)
					}
					if !c.Bool("json") {
						fmt.Fprintln(c.App.Writer, styleSuccess.Render("Notification dismissed"))
					}
					return nil
				},
			},
			notificationsWatchCommand(),
		},
	}
}

func notificationsWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream notifications via SSE until interrupted",
		ArgsUsage: "[wallet_address]",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			jsonOutput := c.Bool("json")
			w := c.App.Writer

			// Create context that cancels on interrupt
			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if !jsonOutput {
				if address != "" {
					fmt.Fprintf(os.Stderr, "Watching notifications for wallet: %s\n", address)
				} else {
					fmt.Fprintf(os.Stderr, "Watching notifications for all wallets\n")
				}
				fmt.Fprintf(os.Stderr, "(Ctrl+C to stop)\n\n")
			}

			err := newClient(c).StreamNotifications(ctx, address, func(n client.Notification) error {
				if jsonOutput {
					return outputJSON(w, n)
				}
				printNotification(w, n)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("notification stream failed: %w", err)
			}
			if !jsonOutput && ctx.Err() == context.Canceled {
				fmt.Fprintf(os.Stderr, "\nDisconnected\n")
			}
			return nil
		},
	}
}
