package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// consoleRoot builds a fresh command tree per line so flag state never
// leaks between commands.
func consoleRoot(s Services, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(AdminCommands(s)...)
	root.AddCommand(&cobra.Command{
		Use:   "exit",
		Short: "Shut the server down",
		Run:   func(cmd *cobra.Command, args []string) {},
	})
	return root
}

// Console reads commands line by line from in until EOF, ctx cancellation
// or "exit". It returns true when the operator asked to exit. Command
// failures are printed and never end the loop.
func Console(ctx context.Context, in io.Reader, out io.Writer, s Services) bool {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if Run(ctx, line, out, s) {
				return true
			}
		}
	}
}

// Run executes one console line and reports whether it was "exit".
func Run(ctx context.Context, line string, out io.Writer, s Services) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	args[0] = strings.ToLower(args[0])

	if args[0] == "exit" {
		printf(out, "Main", "Shutting down...")
		return true
	}

	root := consoleRoot(s, out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		printf(out, args[0], "error: %v", err)
	}
	return false
}

func printf(out io.Writer, name, format string, a ...any) {
	fmt.Fprintf(out, "%s [%s] %s\n", time.Now().Format(time.RFC3339), name, fmt.Sprintf(format, a...))
}
