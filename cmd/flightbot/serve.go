package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flightbot/internal/agent"
	"flightbot/internal/config"
	"flightbot/internal/domain"
	"flightbot/internal/metrics"
	"flightbot/internal/rpc"
	"flightbot/internal/tool"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tools server",
		Long:  "Registers the built-in tools and serves them over Arrow Flight until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	return cmd
}

func runServe(addrOverride string) error {
	cfg := loadConfig()
	configureLogging(cfg, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := tool.NewRegistry()
	registry.Register(tool.NewFileAnalyzer())
	if dir, err := config.ExpandPath(cfg.Tools.Convert.ProfilesDir); err == nil {
		cfg.Tools.Convert.ProfilesDir = dir
	}
	if ft := tool.NewFileTool(cfg.Tools.Convert, logger); ft.Usable() {
		registry.Register(ft)
	} else {
		logger.Warn("file_tool not registered: no conversion engines or profiles found")
	}
	if ws, err := tool.NewWebSearch(cfg.Tools.Search, logger); err != nil {
		logger.Warn("web_search not registered", "err", err)
	} else {
		registry.Register(ws)
	}

	addr := cfg.Server.Addr
	if addrOverride != "" {
		addr = addrOverride
	}

	srv, err := rpc.NewServer(rpc.ServerConfig{Addr: addr, Logger: logger}, registry)
	if err != nil {
		return err
	}

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		go func() {
			logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
		srv.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools registered on the tools server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			tc, err := rpc.Connect(ctx, cfg.General.ToolsAddr, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			names, err := tc.ListTools(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No tools registered.")
				return nil
			}
			fmt.Printf("Tools at %s:\n", cfg.General.ToolsAddr)
			for _, name := range names {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <tool> [json-args]",
		Short: "Execute one tool and print the result",
		Long:  `Dispatches a single tool call to the tools server. Arguments are a JSON value, default {}.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			var toolArgs any
			if err := json.Unmarshal([]byte(raw), &toolArgs); err != nil {
				return fmt.Errorf("invalid args JSON: %w", err)
			}

			// No timeout here: conversions may legitimately run for minutes.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tc, err := rpc.Connect(ctx, cfg.General.ToolsAddr, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			result, err := tc.ExecuteTool(ctx, domain.ToolRequest{Name: args[0], Args: toolArgs})
			if err != nil {
				return err
			}
			fmt.Println(agent.FormatToolResult(args[0], result))
			return nil
		},
	}
}
