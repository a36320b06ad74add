package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const launchdLabel = "com.flightbot.serve"

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>com.flightbot.serve</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{EXEC}}</string>
		<string>serve</string>
		<string>--config</string>
		<string>{{CONFIG}}</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{HOME}}/.flightbot/logs/flightbot.log</string>
	<key>StandardErrorPath</key>
	<string>{{HOME}}/.flightbot/logs/flightbot-error.log</string>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=Flightbot Tools Server
After=network.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the tools server as a system daemon",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install flightbot serve as a background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			cfgPath := resolveConfigPath()

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(execPath, cfgPath)
			case "linux":
				return installSystemd(execPath, cfgPath)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the flightbot background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "darwin":
				return uninstallLaunchd()
			case "linux":
				return uninstallSystemd()
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func installLaunchd(execPath, cfgPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	logDir := filepath.Join(home, ".flightbot", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("cannot create log directory: %w", err)
	}

	plist := launchdPlistTemplate
	plist = strings.ReplaceAll(plist, "{{EXEC}}", execPath)
	plist = strings.ReplaceAll(plist, "{{CONFIG}}", cfgPath)
	plist = strings.ReplaceAll(plist, "{{HOME}}", home)

	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}

	fmt.Printf("Service installed: %s\n", plistPath)
	fmt.Println("Start it with:")
	fmt.Printf("  launchctl load %s\n", plistPath)
	fmt.Println("Stop it with:")
	fmt.Printf("  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		fmt.Println("Service is not installed.")
		return nil
	}
	fmt.Println("If the service is running, stop it first:")
	fmt.Printf("  launchctl unload %s\n", plistPath)
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Service removed: %s\n", plistPath)
	return nil
}

func installSystemd(execPath, cfgPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	unit := systemdUnitTemplate
	unit = strings.ReplaceAll(unit, "{{EXEC}}", execPath)
	unit = strings.ReplaceAll(unit, "{{CONFIG}}", cfgPath)

	unitPath := filepath.Join(home, ".config", "systemd", "user", "flightbot.service")
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}

	fmt.Printf("Service installed: %s\n", unitPath)
	fmt.Println("Start it with:")
	fmt.Println("  systemctl --user daemon-reload")
	fmt.Println("  systemctl --user start flightbot")
	fmt.Println("Enable at login with:")
	fmt.Println("  systemctl --user enable flightbot")
	return nil
}

func uninstallSystemd() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	unitPath := filepath.Join(home, ".config", "systemd", "user", "flightbot.service")
	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		fmt.Println("Service is not installed.")
		return nil
	}
	fmt.Println("If the service is running, stop it first:")
	fmt.Println("  systemctl --user stop flightbot")
	fmt.Println("  systemctl --user disable flightbot")
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Service removed: %s\n", unitPath)
	return nil
}
