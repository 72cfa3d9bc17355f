// Command keepsake is the owner and operator CLI. The crypto commands run
// entirely on the client; the operator commands talk to the configured
// database.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keepsake",
		Short:        "Seal vaults, rebuild recovery kits and run liveness operations",
		SilenceUsage: true,
	}
	root.AddCommand(
		newSealCmd(),
		newOpenCmd(),
		newMergeCmd(),
		newRecoverCmd(),
		newSweepCmd(),
		newTriggerCmd(),
		newTokenCmd(),
	)
	return root
}

// secretReader prompts on the terminal, or reads one line from the command's
// input when --password-stdin is set.
type secretReader struct {
	stdin bool
	in    *bufio.Reader
}

func newSecretReader(cmd *cobra.Command, stdin bool) *secretReader {
	return &secretReader{stdin: stdin, in: bufio.NewReader(cmd.InOrStdin())}
}

func (r *secretReader) read(cmd *cobra.Command, prompt string) ([]byte, error) {
	if r.stdin {
		line, err := r.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("read password from stdin: %w", err)
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return secret, nil
}
