package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/quickvocab/internal/llm"
	"github.com/zulandar/quickvocab/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		withDigest bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat widget web server",
		Long:  "Serves the Quick Vocab chat page, its JSON API and the live event stream. With --digest, also posts the scheduled vocabulary digest.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, withDigest)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&withDigest, "digest", false, "also run the scheduled vocabulary digest")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, withDigest bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
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

	hub, err := web.NewHub(web.HubOpts{
		Factory:    controllerFactory(cfg, model, st),
		MaxClients: cfg.Server.MaxClients,
		IdleTTL:    time.Duration(cfg.Server.IdleTimeoutMins) * time.Minute,
	})
	if err != nil {
		return err
	}
	defer hub.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if withDigest {
		sched, err := newDigestScheduler(cfg, st)
		if err != nil {
			return fmt.Errorf("digest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vocabulary digest scheduled (%s)\n", cfg.Digest.Schedule)
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Printf("digest: %v", err)
			}
		}()
	}

	return web.Start(ctx, web.StartOpts{
		RouterOpts: web.RouterOpts{
			Hub:          hub,
			History:      st,
			ThinkingText: cfg.Chat.ThinkingText,
		},
		Port: cfg.Server.Port,
		Out:  cmd.OutOrStdout(),
	})
}
