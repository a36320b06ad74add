package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"flightbot/internal/config"
	"flightbot/internal/rpc"
	"flightbot/internal/tool"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your flightbot installation",
		Long: `Verifies configuration, the history database, provider credentials,
conversion engines, and tools server reachability. Reports pass/fail per check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Flightbot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'flightbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. History database open and writable
			if cfg.History.Enabled {
				if err := checkDatabase(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", cfg.History.DBPath)
					passed++
				}
			} else {
				printWarn("History database", "disabled in config")
				warned++
			}

			// 4. Provider credentials
			providerCount := 0
			for name, p := range cfg.Providers {
				if !p.Enabled {
					continue
				}
				providerCount++
				envKey := strings.ToUpper(name) + "_API_KEY"
				switch {
				case p.APIKey != "":
					printPass("Provider: "+name, "API key set in config")
					passed++
				case os.Getenv(envKey) != "":
					printPass("Provider: "+name, "API key from "+envKey)
					passed++
				case name == "ollama":
					// Local provider, no key needed
					printPass("Provider: "+name, p.APIBase)
					passed++
				default:
					printWarn("Provider: "+name, "no API key in config or "+envKey)
					warned++
				}
			}
			if providerCount == 0 {
				printFail("Providers", "no providers enabled")
				failed++
			}

			// 5. Conversion engines on PATH
			for _, bin := range tool.ConvertEngines {
				if path, err := exec.LookPath(bin); err == nil {
					printPass("Engine: "+bin, path)
					passed++
				} else {
					printWarn("Engine: "+bin, "not found on PATH")
					warned++
				}
			}

			// 6. Converter profiles directory
			if dir := cfg.Tools.Convert.ProfilesDir; dir != "" {
				if entries, err := os.ReadDir(dir); err != nil {
					printWarn("Profiles", fmt.Sprintf("directory not readable: %s", dir))
					warned++
				} else {
					n := 0
					for _, e := range entries {
						ext := strings.ToLower(filepath.Ext(e.Name()))
						if ext == ".yaml" || ext == ".yml" {
							n++
						}
					}
					printPass("Profiles", fmt.Sprintf("%d profile(s) in %s", n, dir))
					passed++
				}
			}

			// 7. Tools server reachability
			dialCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if tc, err := rpc.Connect(dialCtx, cfg.General.ToolsAddr, logger); err != nil {
				printWarn("Tools server", fmt.Sprintf("not reachable at %s (run 'flightbot serve')", cfg.General.ToolsAddr))
				warned++
			} else {
				names, _ := tc.ListTools(dialCtx)
				tc.Close()
				printPass("Tools server", fmt.Sprintf("%d tool(s) at %s", len(names), cfg.General.ToolsAddr))
				passed++
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running flightbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nFlightbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Flightbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
