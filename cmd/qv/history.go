package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/store"
	"github.com/zulandar/quickvocab/internal/vocab"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved conversations",
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, configPath, limit)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of conversations (defaults to store.list_limit)")
	return cmd
}

func runHistoryList(cmd *cobra.Command, configPath string, limit int) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.List(cmd.Context(), store.ListOpts{Limit: limit})
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), recs)
	return nil
}

func printHistory(out io.Writer, recs []models.HistoryRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tMSGS\tFIRST QUESTION")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", rec.ID, rec.Timestamp, len(rec.Messages), truncate(firstQuestion(rec), 40))
	}
	w.Flush()
}

func newHistoryShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runHistoryShow(cmd *cobra.Command, configPath, id string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conversation: %s\n", rec.ID)
	fmt.Fprintf(out, "Saved:        %s\n\n", rec.Timestamp)
	for _, m := range rec.Messages {
		printMessage(out, m)
	}
	return nil
}

// printMessage writes one transcript message as plain text.
func printMessage(out io.Writer, m models.Message) {
	if m.Role == models.RoleUser {
		fmt.Fprintf(out, "You: %s\n\n", m.Content)
		return
	}
	fmt.Fprintf(out, "%s\n", vocab.Plain(m.Content))
	if len(m.Vocabularies) > 0 {
		fmt.Fprintf(out, "Vocabulary: %s\n", strings.Join(m.Vocabularies, ", "))
	}
	fmt.Fprintln(out)
}

func firstQuestion(rec models.HistoryRecord) string {
	for _, m := range rec.Messages {
		if m.Role == models.RoleUser {
			return strings.Join(strings.Fields(m.Content), " ")
		}
	}
	return "-"
}

// truncate shortens s to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
