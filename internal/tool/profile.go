package tool

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConvertProfile is a user-defined conversion recipe loaded from YAML.
// Args may contain {input}, {output}, {format}, and {quality} placeholders.
type ConvertProfile struct {
	Name   string   `yaml:"name"`
	Match  []string `yaml:"match"`
	Engine string   `yaml:"engine"`
	Args   []string `yaml:"args"`
}

// LoadProfiles loads conversion profiles from YAML files in dir.
// Files must have a .yaml or .yml extension; unreadable or malformed files
// are skipped with a warning.
func LoadProfiles(dir string, logger *slog.Logger) ([]ConvertProfile, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("profiles directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	var profiles []ConvertProfile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read profile file", "path", path, "err", err)
			continue
		}

		var prof ConvertProfile
		if err := yaml.Unmarshal(data, &prof); err != nil {
			logger.Warn("cannot parse profile file", "path", path, "err", err)
			continue
		}

		if prof.Name == "" {
			prof.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if prof.Engine == "" || len(prof.Match) == 0 {
			logger.Warn("profile missing engine or match list, skipping", "path", path)
			continue
		}

		logger.Info("loaded converter profile", "name", prof.Name, "engine", prof.Engine)
		profiles = append(profiles, prof)
	}

	return profiles, nil
}

// matchProfile returns the first profile whose match list contains ext and
// whose engine binary is on PATH.
func matchProfile(profiles []ConvertProfile, ext string) *ConvertProfile {
	for i := range profiles {
		for _, m := range profiles[i].Match {
			if !strings.EqualFold(m, ext) {
				continue
			}
			if _, err := exec.LookPath(profiles[i].Engine); err == nil {
				return &profiles[i]
			}
		}
	}
	return nil
}

// expandProfileArgs substitutes run-time placeholders in profile args.
func expandProfileArgs(args []string, input, output, format, quality string) []string {
	repl := strings.NewReplacer(
		"{input}", input,
		"{output}", output,
		"{format}", format,
		"{quality}", quality,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = repl.Replace(a)
	}
	return out
}
