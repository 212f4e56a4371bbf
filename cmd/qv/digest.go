package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/digest"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		now        bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Post the vocabulary digest to Slack and Discord",
		Long: `Summarizes the vocabulary taught in recent conversations and posts it to
the configured webhooks on the digest.schedule cron expression.

With --now, builds and posts one digest and exits. With --dry-run, prints the
digest instead of posting it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, configPath, now, dryRun)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&now, "now", false, "post one digest immediately and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of posting it")
	return cmd
}

func runDigest(cmd *cobra.Command, configPath string, now, dryRun bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if dryRun {
		until := time.Now()
		lookback := time.Duration(cfg.Digest.LookbackHours) * time.Hour
		report, err := digest.Build(cmd.Context(), st, until.Add(-lookback), until)
		if err != nil {
			return err
		}
		if report == nil {
			fmt.Fprintf(out, "No vocabulary in the last %d hours.\n", cfg.Digest.LookbackHours)
			return nil
		}
		f := digest.Format(report)
		fmt.Fprintf(out, "%s\n%s\n", f.Title, f.Body)
		return nil
	}

	sched, err := newDigestScheduler(cfg, st)
	if err != nil {
		return err
	}

	if now {
		sent, err := sched.RunOnce(cmd.Context())
		if !sent && err == nil {
			fmt.Fprintf(out, "No vocabulary in the last %d hours; nothing posted.\n", cfg.Digest.LookbackHours)
			return nil
		}
		if sent {
			fmt.Fprintln(out, "Digest posted.")
		}
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	fmt.Fprintf(out, "Next digest at %s\n", sched.Next(time.Now()).Format(time.RFC1123))
	return sched.Run(ctx)
}
