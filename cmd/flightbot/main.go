package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"flightbot/internal/agent"
	"flightbot/internal/config"
	"flightbot/internal/domain"
	"flightbot/internal/history"
	"flightbot/internal/provider"
	"flightbot/internal/rpc"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "flightbot",
		Short: "Flightbot: chat agent with remote tool dispatch over Arrow Flight",
		Long:  "Flightbot streams LLM completions in a terminal chat and executes tool calls on a separate tools server over Arrow Flight.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.flightbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(execCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(configCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults with a warning
// when it is missing or unreadable.
func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

// configureLogging rebuilds the global logger from config: level, and an
// optional log file alongside stderr.
func configureLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			logger.Warn("cannot create log directory", "path", cfg.General.LogFile, "err", err)
		} else if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			logger.Warn("cannot open log file", "path", cfg.General.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Printf("Config already exists: %s\n", cfgPath)
				return nil
			}

			cfg := config.Defaults()
			// The written file references the environment; Load expands it.
			ds := cfg.Providers["deepseek"]
			ds.APIKey = "${DEEPSEEK_API_KEY:-}"
			cfg.Providers["deepseek"] = ds

			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if dir, err := config.ExpandPath(cfg.Tools.Convert.ProfilesDir); err == nil && dir != "" {
				_ = os.MkdirAll(dir, 0o755)
			}

			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Println("Set DEEPSEEK_API_KEY (or edit the config), start 'flightbot serve', then run 'flightbot chat'.")
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runChat(verbose bool) error {
	cfg := loadConfig()
	configureLogging(cfg, verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := provider.NewFactory(cfg, logger)
	prov, err := factory.ForChat("")
	if err != nil {
		return fmt.Errorf("select provider: %w", err)
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	}

	session := agent.NewSession(agent.SessionConfig{Provider: prov, Logger: logger})

	// Tools are optional: without a reachable server this is plain chat.
	tc, err := rpc.Connect(ctx, cfg.General.ToolsAddr, logger)
	if err != nil {
		logger.Debug("tools connect failed", "addr", cfg.General.ToolsAddr, "err", err)
		fmt.Printf("No tools server at %s; chatting without tools.\n", cfg.General.ToolsAddr)
		if cfg.General.SystemPromptExtra != "" {
			session.AddSystemMessage(cfg.General.SystemPromptExtra)
		}
	} else {
		defer tc.Close()
		names, err := tc.ListTools(ctx)
		if err != nil {
			logger.Warn("tool discovery failed", "err", err)
		}
		session.SetToolsClient(tc)
		session.AddSystemMessage(agent.BuildSystemPrompt(names, cfg.General.SystemPromptExtra))
		fmt.Printf("Connected to tools server at %s (%d tools).\n", cfg.General.ToolsAddr, len(names))
	}

	var store *history.SQLiteStore
	if cfg.History.Enabled && cfg.History.DBPath != "" {
		// Defaults() carries a tilde-raw path; Load expands, the fallback does not.
		dbPath := cfg.History.DBPath
		if expanded, perr := config.ExpandPath(dbPath); perr == nil {
			dbPath = expanded
		}
		store, err = history.NewSQLiteStore(dbPath, logger)
		if err != nil {
			logger.Warn("history disabled", "err", err)
			store = nil
		} else {
			defer store.Close()
			if _, err := store.Prune(ctx, cfg.History.RetentionDays); err != nil {
				logger.Warn("history prune failed", "err", err)
			}
		}
	}

	// The conversation row is created lazily on the first completed turn, so
	// sessions that never produce a response leave no trace.
	var convID string
	persistTurn := func(user, assistant string) {
		if store == nil {
			return
		}
		if convID == "" {
			convID = uuid.NewString()
			conv := domain.Conversation{ID: convID, Title: conversationTitle(user), Provider: prov.Name()}
			if err := store.CreateConversation(ctx, conv); err != nil {
				logger.Warn("cannot record conversation", "err", err)
				store = nil
				return
			}
		}
		for _, rec := range []domain.MessageRecord{
			{Role: domain.RoleUser, Content: user},
			{Role: domain.RoleAssistant, Content: assistant},
		} {
			if err := store.AddMessage(ctx, convID, rec); err != nil {
				logger.Warn("cannot record message", "err", err)
			}
		}
	}

	fmt.Println("Flightbot chat. Type a message and press Enter; 'quit' or 'exit' to leave.")
	fmt.Print("You> ")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("You> ")
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		session.AddUserMessage(line)

		sp := newSpinner(os.Stdout)
		sp.start()
		text, err := session.GetResponse(ctx, func(fragment string) {
			sp.stop()
			fmt.Print(fragment)
		})
		sp.stop()
		if err != nil {
			// The failed turn is already rolled back; the user can retry.
			fmt.Printf("Error: %v\n", err)
		} else {
			session.AddAssistantMessage(text)
			persistTurn(line, text)
			fmt.Println()
		}
		fmt.Print("You> ")
	}
}

// conversationTitle derives a short title from the first user message.
func conversationTitle(msg string) string {
	title := strings.Join(strings.Fields(msg), " ")
	if r := []rune(title); len(r) > 60 {
		title = string(r[:57]) + "..."
	}
	return title
}

// spinner renders a braille animation on one line until stopped. stop is
// idempotent and clears the line, so the first streamed fragment can call it
// before printing.
type spinner struct {
	out  io.Writer
	mu   sync.Mutex
	on   bool
	halt chan struct{}
}

func newSpinner(out io.Writer) *spinner {
	return &spinner{out: out}
}

func (s *spinner) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.on {
		return
	}
	s.on = true
	s.halt = make(chan struct{})
	go func(halt chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-halt:
				return
			case <-ticker.C:
				fmt.Fprintf(s.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(s.halt)
}

func (s *spinner) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.on {
		return
	}
	s.on = false
	close(s.halt)
	fmt.Fprint(s.out, "\r\033[K")
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.defaultProvider ollama)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
