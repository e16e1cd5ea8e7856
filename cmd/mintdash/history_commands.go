package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/mintdash/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List the connected wallet's recent transactions",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter each transaction must satisfy (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			txns, err := newClient(c).Transactions(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			matched := make([]client.Transaction, 0, len(txns))
			for _, txn := range txns {
				ok, err := matchesAll(filters, txn)
				if err != nil {
					return err
				}
				if ok {
					matched = append(matched, txn)
				}
			}

			w := c.App.Writer
			if c.Bool("json") {
				return outputJSON(w, matched)
			}

			fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("Recent transactions (%d)", len(matched))))
			if len(matched) == 0 {
				fmt.Fprintln(w, "No transactions found")
				return nil
			}
			for _, txn := range matched {
				printTransaction(w, txn)
			}
			return nil
		},
	}
}

// compileFilters parses and compiles jq filter expressions.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, filter := range exprs {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesAll runs every filter against the JSON form of txn. A filter that
// errors or yields nothing does not match.
func matchesAll(filters []*gojq.Code, txn client.Transaction) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// gojq wants plain maps, not structs
	raw, err := json.Marshal(txn)
	if err != nil {
		return false, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if _, isErr := v.(error); isErr {
			return false, nil
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printTransaction(w io.Writer, txn client.Transaction) {
	fmt.Fprintln(w, rule)
	status := styleSuccess.Render(txn.Outcome)
	if txn.Outcome != "confirmed" {
		status = styleError.Render(txn.Outcome)
	}
	fmt.Fprintf(w, "Signature:  %s\n", styleAddress.Render(txn.Signature))
	fmt.Fprintf(w, "Kind:       %s\n", txn.Kind)
	fmt.Fprintf(w, "Outcome:    %s\n", status)
	fmt.Fprintf(w, "Slot:       %d\n", txn.Slot)
	if !txn.BlockTime.IsZero() {
		fmt.Fprintf(w, "Block Time: %s\n", txn.BlockTime.Format(time.RFC3339))
	}
	if txn.Err != "" {
		fmt.Fprintf(w, "Error:      %s\n", txn.Err)
	}
	if txn.Memo != "" {
		fmt.Fprintf(w, "Memo:       %s\n", txn.Memo)
	}
}
