package main

import (
	"fmt"
	"io"
	"time"

	"github.com/brojonat/mintdash/client"
	"github.com/urfave/cli/v2"
)

func sessionCommands() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Wallet session commands",
		Subcommands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Connect the server's wallet",
				Action: func(c *cli.Context) error {
					sess, err := newClient(c).Connect(c.Context)
					if err != nil {
						return fmt.Errorf("failed to connect: %w", err)
					}
					return printSession(c, sess)
				},
			},
			{
				Name:  "disconnect",
				Usage: "Disconnect the wallet",
				Action: func(c *cli.Context) error {
					if err := newClient(c).Disconnect(c.Context); err != nil {
						return fmt.Errorf("failed to disconnect: %w", err)
					}
					if !c.Bool("json") {
						fmt.Fprintln(c.App.Writer, styleSuccess.Render("✓ Wallet disconnected"))
					}
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the current session",
				Action: func(c *cli.Context) error {
					sess, err := newClient(c).Session(c.Context)
					if err != nil {
						return fmt.Errorf("failed to get session: %w", err)
					}
					return printSession(c, sess)
				},
			},
		},
	}
}

func printSession(c *cli.Context, sess *client.Session) error {
	w := c.App.Writer
	if c.Bool("json") {
		return outputJSON(w, sess)
	}
	writeSession(w, sess)
	return nil
}

func writeSession(w io.Writer, sess *client.Session) {
	if !sess.Connected {
		fmt.Fprintln(w, styleMeta.Render("No wallet connected"))
		return
	}
	fmt.Fprintf(w, "Address:  %s\n", styleAddress.Render(sess.Address))
	fmt.Fprintf(w, "Balance:  %s SOL\n", styleValue.Render(sess.NativeBalance.String()))
	if !sess.LastRefresh.IsZero() {
		fmt.Fprintf(w, "Updated:  %s\n", styleMeta.Render(sess.LastRefresh.Format(time.RFC3339)))
	}
}
