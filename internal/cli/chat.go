package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mofangju/security-agent/internal/assistant"
)

var (
	chatSession string
	chatMessage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Lumina in the terminal",
	Long: `Start an interactive chat with Lumina, or send a single message.

Examples:
  security-agent chat
  security-agent chat -m "show me today's attacks"

A pending change only survives between -m runs when the ledger is shared
(ledger.backend: redis):
  security-agent chat --session ops -m "switch to block mode"
  security-agent chat --session ops -m "confirm 123456"`,
	RunE: chatCommand,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session ID to continue (default: new session)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message and exit")
	rootCmd.AddCommand(chatCmd)
}

func chatCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}
	if chatMessage != "" {
		reply, err := rt.turn(ctx, session, chatMessage)
		if err != nil {
			return err
		}
		printReply(cmd.OutOrStdout(), reply, false)
		return nil
	}
	return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), isInteractive(), session, rt.turn)
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

type turnFunc func(ctx context.Context, session, message string) (assistant.Reply, error)

// runChat reads one message per line until EOF, "exit" or "quit". Prompts
// and the banner are only shown on a terminal so piped transcripts stay clean.
func runChat(ctx context.Context, in io.Reader, out io.Writer, interactive bool, session string, turn turnFunc) error {
	if interactive {
		fmt.Fprintln(out, "Lumina - SafeLine WAF assistant")
		fmt.Fprintf(out, "Session %s. Type 'exit' to quit.\n\n", session)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(out, "you> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := turn(ctx, session, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printReply(out, reply, interactive)
	}
	return scanner.Err()
}

func printReply(out io.Writer, reply assistant.Reply, interactive bool) {
	if interactive {
		fmt.Fprintf(out, "lumina [%s]> %s\n", reply.Route, reply.Text)
	} else {
		fmt.Fprintln(out, reply.Text)
	}
	if reply.Pending && interactive {
		fmt.Fprintln(out, "  (awaiting confirmation: reply with the code shown, or 'cancel')")
	}
	if interactive {
		fmt.Fprintln(out)
	}
}
