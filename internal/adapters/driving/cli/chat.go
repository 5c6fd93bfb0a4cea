package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/audiovideoron/distillyzer/internal/adapters/driving/tui"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

var chatPlain bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the knowledge base",
	Long: `Starts a conversation over the knowledge base. Earlier turns are
remembered, so follow-up questions can refer to previous answers.

On a terminal this opens the interactive chat UI:
  Enter    - Ask
  Ctrl+L   - New conversation
  PgUp/Dn  - Scroll
  Esc      - Quit

With --plain, or when input is not a terminal, questions are read line by
line. Type /clear to start over and exit or Ctrl+D to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addRetrievalFlags(chatCmd)
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "line-based chat without the interactive UI")
	needsServices(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	svc, err := requireQuery()
	if err != nil {
		return err
	}
	opts, err := queryOptions()
	if err != nil {
		return err
	}

	if !chatPlain && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()) {
		app, err := tui.NewApp(tui.NewPorts(svc))
		if err != nil {
			return fmt.Errorf("failed to create chat UI: %w", err)
		}
		if err := app.WithContext(cmd.Context()).WithOptions(opts).Run(); err != nil {
			return fmt.Errorf("chat UI error: %w", err)
		}
		return nil
	}

	return plainChat(cmd.Context(), svc, opts, cmd.InOrStdin(), cmd.OutOrStdout())
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// plainChat reads one question per line until EOF or "exit".
func plainChat(
	ctx context.Context, svc driving.QueryService, opts driving.QueryOptions, in io.Reader, out io.Writer,
) error {
	history := domain.NewHistory()
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, boldGreen("distillyzer chat"))
	fmt.Fprintln(out, "Type your question and press Enter. Type /clear to start over, exit to quit.")
	fmt.Fprintln(out)

	for {
		fmt.Fprint(out, boldGreen("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/clear":
			history.Reset()
			fmt.Fprintln(out, faint("Conversation cleared."))
			continue
		}

		ans, err := svc.Chat(ctx, history, line, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "%s %v\n\n", red("Error:"), err)
			continue
		}
		fmt.Fprint(out, boldCyan("Assistant: "))
		printAnswer(out, ans)
		fmt.Fprintln(out)
	}
}
