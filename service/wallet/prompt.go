package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/gagliardetto/solana-go"
)

var (
	promptTitle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9B5DE5")).Bold(true)
	promptAddress = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B4D8"))
	promptMeta    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	promptAsk     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800")).Bold(true)
	promptBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1E3A5F")).
			Padding(0, 1)
)

// PromptApprover asks the wallet holder on a terminal. Anything other than
// "y" or "yes" is a rejection. Prompts are serialized.
type PromptApprover struct {
	mu    sync.Mutex
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan string
}

// NewPromptApprover reads answers from in and writes prompts to out.
func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

// readLines feeds p.lines from a single reader goroutine; the channel is
// closed when input ends.
func (p *PromptApprover) readLines() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
}

func (p *PromptApprover) ApproveConnection(ctx context.Context, address solana.PublicKey) (bool, error) {
	body := promptTitle.Render("Connect wallet") + "\n" +
		promptAddress.Render(address.String())
	return p.ask(ctx, body, "Allow mintdash to use this wallet?")
}

func (p *PromptApprover) ApproveSignature(ctx context.Context, tx *PendingTransaction) (bool, error) {
	lines := []string{
		promptTitle.Render("Signature request: " + tx.Operation),
		tx.Summary,
		promptMeta.Render(fmt.Sprintf("fee payer %s", tx.FeePayer)),
		promptMeta.Render(fmt.Sprintf("%d instruction(s), %d co-signer(s)", len(tx.Instructions), len(tx.CoSigners))),
	}
	return p.ask(ctx, strings.Join(lines, "\n"), "Sign this transaction?")
}

func (p *PromptApprover) ask(ctx context.Context, body, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintln(p.out, promptBox.Render(body))
	fmt.Fprintf(p.out, "%s [y/N]: ", promptAsk.Render(question))

	p.once.Do(func() { go p.readLines() })

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return false, nil
		}
		line = strings.TrimSpace(strings.ToLower(line))
		return line == "y" || line == "yes", nil
	}
}
