package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/aide"
	"github.com/hupe1980/aide/capability"
)

// confirmTimeout bounds how long a confirmation prompt waits for an answer.
// An expired prompt denies the action.
const confirmTimeout = 2 * time.Minute

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive assistant session",
		Long: "Start a read-eval-print loop against the assistant. Type a message and\n" +
			"press enter; slash commands control the session (/help lists them).",
		RunE: runChat,
	}

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	in := newLineReader(os.Stdin)

	assistant, err := aide.New(cfg, func(o *aide.Options) {
		o.Logger = newLogger()
		o.Confirm = terminalConfirm(in)
	})
	if err != nil {
		return err
	}
	defer assistant.Close()

	fmt.Printf("%s ready. Type /help for commands, /quit to exit.\n", cfg.AgentName)

	for {
		fmt.Print("> ")
		line, ok := <-in.lines
		if !ok {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := runSlashCommand(cmd.Context(), assistant, input); quit {
				return nil
			}
			continue
		}

		resp, err := assistant.ProcessTurn(cmd.Context(), input, userFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println(resp.Text)
		for _, action := range resp.ActionsTaken {
			fmt.Printf("  [action] %s\n", action)
		}
	}
}

// runSlashCommand handles one slash command and reports whether to quit.
func runSlashCommand(ctx context.Context, assistant *aide.Aide, input string) bool {
	parts := strings.SplitN(input, " ", 2)

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`/memory    show stored memories
/clear     clear the conversation transcript
/history   show the conversation transcript
/skills    list available capabilities
/audit     show the capability audit log
/quit      exit`)

	case "/memory":
		records, err := assistant.Memory().All(ctx, userFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		if len(records) == 0 {
			fmt.Println("No memories stored.")
			return false
		}
		for _, r := range records {
			line := fmt.Sprintf("[%d] %s", r.ID, r.Content)
			if len(r.Tags) > 0 {
				line += fmt.Sprintf(" (tags: %s)", strings.Join(r.Tags, ", "))
			}
			fmt.Println(line)
		}

	case "/clear":
		assistant.ClearTranscript(userFlag)
		fmt.Println("Transcript cleared.")

	case "/history":
		entries := assistant.Transcript(userFlag)
		if len(entries) == 0 {
			fmt.Println("Transcript is empty.")
			return false
		}
		for _, e := range entries {
			fmt.Printf("%s  %-17s %s\n", e.Timestamp.Format("15:04:05"), e.Role, e.Content)
		}

	case "/skills":
		printCapabilities(assistant.Registry())

	case "/audit":
		entries := assistant.Gateway().AuditLog(20)
		if len(entries) == 0 {
			fmt.Println("Audit log is empty.")
			return false
		}
		for _, e := range entries {
			status := "ok"
			if !e.Success {
				status = "failed: " + e.Error
			}
			fmt.Printf("%s  %s  %s  %s\n", e.Timestamp.Format("15:04:05"), e.Capability, e.Duration.Round(time.Millisecond), status)
		}

	default:
		fmt.Printf("Unknown command %s. Type /help for commands.\n", parts[0])
	}

	return false
}

// lineReader owns reading from an input stream. A single goroutine reads
// lines for the whole session so the REPL loop and confirmation prompts never
// compete for the same reader; a confirmation that times out leaves the
// eventually typed line for the next REPL read instead of losing it.
type lineReader struct {
	lines chan string
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string)}
	go func() {
		defer close(lr.lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lr.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
	return lr
}

// terminalConfirm asks a yes/no question on the terminal. Anything other
// than an explicit yes, including a timeout, denies the action.
func terminalConfirm(in *lineReader) capability.ConfirmFunc {
	return func(ctx context.Context, prompt string) (bool, error) {
		fmt.Println(prompt)
		fmt.Print("> ")

		ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
		defer cancel()

		select {
		case <-ctx.Done():
			fmt.Println("(confirmation timed out, denying)")
			return false, ctx.Err()
		case line, ok := <-in.lines:
			if !ok {
				return false, io.EOF
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			}
			return false, nil
		}
	}
}
