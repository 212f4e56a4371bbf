package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/conversation"
	"github.com/zulandar/quickvocab/internal/llm"
	"github.com/zulandar/quickvocab/internal/models"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long: `Opens an interactive chat. On a terminal this is a full-screen view with
typed-out answers; when input is piped, or with --plain, it reads one question
per line.

Commands: /new starts a new conversation, /history lists saved ones, /quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, plain)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&plain, "plain", false, "use line mode even on a terminal")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string, plain bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	model, err := llm.New(cfg.Model, nil)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	tui := !plain && isTerminal(in)

	opts := controllerOptions(cfg, model, st)
	if tui {
		// Failures are shown in the status line; log lines would tear the screen.
		opts.Logger = log.New(io.Discard, "", 0)
	} else {
		opts.Logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}
	ctrl, err := conversation.New(opts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if tui {
		return runChatTUI(cmd.Context(), ctrl, in, out)
	}
	return runChatLines(cmd.Context(), ctrl, in, out)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runChatLines reads one question per line and prints each answer in full.
func runChatLines(ctx context.Context, ctrl *conversation.Controller, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Quick Vocab. Ask about any word or phrase. Commands: /new, /history, /quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			ctrl.StartNewSession()
			fmt.Fprintln(out, "Started a new conversation.")
			continue
		case "/history":
			recs, err := ctrl.RefreshHistory(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printHistory(out, recs)
			continue
		}

		before := len(ctrl.Transcript())
		err := ctrl.Send(ctx, line)
		msgs := ctrl.Transcript()
		for _, m := range msgs[min(before, len(msgs)):] {
			if m.Role == models.RoleAssistant {
				fmt.Fprintln(out)
				printMessage(out, m)
			}
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
