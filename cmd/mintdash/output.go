package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/mintdash/client"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D26A")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)
	styleAddress = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B4D8"))
	styleValue   = lipgloss.NewStyle().Bold(true)
	styleMeta    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	styleHeader  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F15BB5")).Bold(true).Underline(true)
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// newClient builds an API client for the configured server. Only errors are
// logged, to stderr.
func newClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res *client.OperationResult) {
	fmt.Fprintln(w, styleSuccess.Render("✓ "+res.Message))
	fmt.Fprintf(w, "  Mint:      %s\n", styleAddress.Render(res.Mint))
	if res.Amount != "" {
		fmt.Fprintf(w, "  Amount:    %s (%d base units)\n", styleValue.Render(res.Amount), res.BaseUnits)
	}
	fmt.Fprintf(w, "  Signature: %s\n", styleAddress.Render(res.Signature))
	fmt.Fprintf(w, "  Status:    %s\n", res.Status)
}

func printNotification(w io.Writer, n client.Notification) {
	style := styleSuccess
	mark := "✓"
	if n.Kind == "error" {
		style = styleError
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", style.Render(mark+" "+n.Message), styleMeta.Render(n.Operation))
}
