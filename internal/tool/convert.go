package tool

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"flightbot/internal/config"
	"flightbot/internal/domain"
)

var (
	documentExts   = []string{"doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp"}
	imageExts      = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"}
	mediaExts      = []string{"mp4", "avi", "mkv", "mov", "mp3", "wav", "flac"}
	postscriptExts = []string{"pdf", "ps", "eps"}
)

// ConvertEngines lists the external binaries the built-in routing can use.
var ConvertEngines = []string{"soffice", "convert", "ffmpeg", "gs"}

// FileTool converts, compresses, renames, and organizes files. Conversion
// drives external engines (LibreOffice, ImageMagick, ffmpeg, Ghostscript)
// detected on PATH at construction.
type FileTool struct {
	cfg      config.ConvertConfig
	profiles []ConvertProfile
	engines  map[string]string
	logger   *slog.Logger
}

var _ domain.Tool = (*FileTool)(nil)

func NewFileTool(cfg config.ConvertConfig, logger *slog.Logger) *FileTool {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	t := &FileTool{cfg: cfg, engines: make(map[string]string), logger: logger}
	for _, bin := range ConvertEngines {
		if path, err := exec.LookPath(bin); err == nil {
			t.engines[bin] = path
		}
	}
	profiles, err := LoadProfiles(cfg.ProfilesDir, logger)
	if err != nil {
		logger.Warn("cannot load converter profiles", "dir", cfg.ProfilesDir, "err", err)
	}
	t.profiles = profiles
	if len(t.engines) > 0 {
		logger.Debug("conversion engines detected", "engines", slices.Sorted(maps.Keys(t.engines)))
	}
	return t
}

func (t *FileTool) Name() string { return "file_tool" }
func (t *FileTool) Description() string {
	return "Convert, compress, decompress, rename, or organize files. Conversion uses local engines (LibreOffice, ImageMagick, ffmpeg, Ghostscript) chosen by input extension."
}

// Usable reports whether any conversion engine or profile was found. The
// archive and rename operations work regardless, but a host with neither
// engines nor profiles usually does not want the tool advertised.
func (t *FileTool) Usable() bool {
	return len(t.engines) > 0 || len(t.profiles) > 0
}

type fileToolParams struct {
	Operation string          `json:"operation"`
	Input     string          `json:"input"`
	Output    string          `json:"output,omitempty"`
	Options   fileToolOptions `json:"options"`
}

type fileToolOptions struct {
	Format    string   `json:"format,omitempty"`
	Quality   string   `json:"quality,omitempty"`
	PageRange string   `json:"page_range,omitempty"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

type convertReport struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	OutputPath string         `json:"output_path"`
	Details    convertDetails `json:"details"`
}

type convertDetails struct {
	OriginalSize   int64   `json:"original_size"`
	ProcessedSize  int64   `json:"processed_size"`
	ProcessingTime float64 `json:"processing_time"`
}

func (t *FileTool) Execute(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
	var params fileToolParams
	if err := decodeArgs(req.Args, &params); err != nil {
		return domain.ErrorResult(err), nil
	}
	if params.Operation == "" {
		return domain.ErrorResult(fmt.Errorf("missing argument: operation")), nil
	}
	if params.Input == "" {
		return domain.ErrorResult(fmt.Errorf("missing argument: input")), nil
	}

	info, err := os.Stat(params.Input)
	if err != nil {
		return domain.ErrorResult(fmt.Errorf("input not found: %s", params.Input)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	var outputPath, message string
	switch params.Operation {
	case "convert":
		outputPath, message, err = t.convert(ctx, params)
	case "compress":
		outputPath, message, err = t.compress(params)
	case "decompress":
		outputPath, message, err = t.decompress(params)
	case "rename":
		outputPath, message, err = t.rename(params)
	case "organize":
		outputPath, message, err = t.organize(params)
	default:
		return domain.ErrorResult(fmt.Errorf("unknown operation %q (expected convert, compress, decompress, rename, or organize)", params.Operation)), nil
	}
	if err != nil {
		return domain.ErrorResult(err), nil
	}

	report := convertReport{
		Success:    true,
		Message:    message,
		OutputPath: outputPath,
		Details: convertDetails{
			OriginalSize:   info.Size(),
			ProcessedSize:  fileSize(outputPath),
			ProcessingTime: time.Since(start).Seconds(),
		},
	}
	return domain.OKResult(report), nil
}

func (t *FileTool) convert(ctx context.Context, p fileToolParams) (string, string, error) {
	format := strings.ToLower(p.Options.Format)
	if format == "" && p.Output != "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(p.Output)), ".")
	}
	if format == "" {
		return "", "", fmt.Errorf("missing conversion format: set options.format or give output an extension")
	}

	output := p.Output
	if output == "" {
		output = strings.TrimSuffix(p.Input, filepath.Ext(p.Input)) + "." + format
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p.Input)), ".")

	// User profiles take precedence over the built-in routing.
	if prof := matchProfile(t.profiles, ext); prof != nil {
		args := expandProfileArgs(prof.Args, p.Input, output, format, p.Options.Quality)
		cmd := exec.CommandContext(ctx, prof.Engine, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", "", fmt.Errorf("profile %s failed: %w: %s", prof.Name, err, firstLine(out))
		}
		return output, fmt.Sprintf("Converted %s to %s using profile %s", p.Input, output, prof.Name), nil
	}

	var cmd *exec.Cmd
	switch {
	case slices.Contains(documentExts, ext):
		bin, err := t.engine("soffice")
		if err != nil {
			return "", "", err
		}
		cmd = exec.CommandContext(ctx, bin, "--headless", "--convert-to", format, p.Input, "--outdir", filepath.Dir(output))
		// soffice derives the output name from the input.
		output = filepath.Join(filepath.Dir(output), strings.TrimSuffix(filepath.Base(p.Input), filepath.Ext(p.Input))+"."+format)

	case slices.Contains(imageExts, ext):
		bin, err := t.engine("convert")
		if err != nil {
			return "", "", err
		}
		args := []string{p.Input}
		if q := imageQuality(p.Options.Quality); q != "" {
			args = append(args, "-quality", q)
		}
		args = append(args, output)
		cmd = exec.CommandContext(ctx, bin, args...)

	case slices.Contains(mediaExts, ext):
		bin, err := t.engine("ffmpeg")
		if err != nil {
			return "", "", err
		}
		args := []string{"-i", p.Input, "-crf", t.crfFor(p.Options.Quality)}
		args = append(args, p.Options.ExtraArgs...)
		args = append(args, output)
		cmd = exec.CommandContext(ctx, bin, args...)

	case slices.Contains(postscriptExts, ext):
		bin, err := t.engine("gs")
		if err != nil {
			return "", "", err
		}
		args := []string{"-sDEVICE=pdfwrite", "-dNOPAUSE", "-dBATCH", "-dSAFER"}
		if first, last, ok := parsePageRange(p.Options.PageRange); ok {
			args = append(args, fmt.Sprintf("-dFirstPage=%d", first), fmt.Sprintf("-dLastPage=%d", last))
		}
		args = append(args, "-sOutputFile="+output, p.Input)
		cmd = exec.CommandContext(ctx, bin, args...)

	default:
		return "", "", fmt.Errorf("no conversion engine for extension %q", ext)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", "", fmt.Errorf("conversion failed: %w: %s", err, firstLine(out))
	}
	return output, fmt.Sprintf("Converted %s to %s", p.Input, output), nil
}

func (t *FileTool) compress(p fileToolParams) (string, string, error) {
	output := p.Output
	if output == "" {
		output = filepath.Clean(p.Input) + ".tar.gz"
	}
	if err := CreateTarGz(output, []string{p.Input}); err != nil {
		return "", "", fmt.Errorf("compress: %w", err)
	}
	return output, fmt.Sprintf("Compressed %s to %s", p.Input, output), nil
}

func (t *FileTool) decompress(p fileToolParams) (string, string, error) {
	dest := p.Output
	if dest == "" {
		base := filepath.Base(p.Input)
		base = strings.TrimSuffix(base, ".tar.gz")
		base = strings.TrimSuffix(base, ".tgz")
		dest = filepath.Join(filepath.Dir(p.Input), base)
	}
	files, err := ExtractTarGz(p.Input, dest)
	if err != nil {
		return "", "", fmt.Errorf("decompress: %w", err)
	}
	return dest, fmt.Sprintf("Extracted %d files from %s to %s", len(files), p.Input, dest), nil
}

func (t *FileTool) rename(p fileToolParams) (string, string, error) {
	if p.Output == "" {
		return "", "", fmt.Errorf("missing argument: output")
	}
	if _, err := os.Stat(p.Output); err == nil {
		return "", "", fmt.Errorf("destination already exists: %s", p.Output)
	}
	if err := os.Rename(p.Input, p.Output); err != nil {
		return "", "", fmt.Errorf("rename: %w", err)
	}
	return p.Output, fmt.Sprintf("Renamed %s to %s", p.Input, p.Output), nil
}

func (t *FileTool) organize(p fileToolParams) (string, string, error) {
	info, err := os.Stat(p.Input)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%s is not a directory", p.Input)
	}

	entries, err := os.ReadDir(p.Input)
	if err != nil {
		return "", "", fmt.Errorf("read dir: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		bucket := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if bucket == "" {
			bucket = "no_extension"
		}
		destDir := filepath.Join(p.Input, bucket)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", "", fmt.Errorf("create %s: %w", destDir, err)
		}
		if err := os.Rename(filepath.Join(p.Input, name), filepath.Join(destDir, name)); err != nil {
			return "", "", fmt.Errorf("move %s: %w", name, err)
		}
		moved++
	}
	return p.Input, fmt.Sprintf("Organized %d files into extension folders under %s", moved, p.Input), nil
}

func (t *FileTool) engine(name string) (string, error) {
	if path, ok := t.engines[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("conversion engine %q not found on PATH", name)
}

// crfFor maps a quality name to an ffmpeg CRF value.
func (t *FileTool) crfFor(quality string) string {
	switch strings.ToLower(quality) {
	case "high":
		return "18"
	case "medium", "":
		return "23"
	case "low":
		return "28"
	default:
		t.logger.Warn("unknown quality, using medium", "quality", quality)
		return "23"
	}
}

// imageQuality maps a quality name to an ImageMagick -quality percentage.
// Numeric values pass through; empty means engine default.
func imageQuality(quality string) string {
	switch strings.ToLower(quality) {
	case "":
		return ""
	case "high":
		return "95"
	case "medium":
		return "85"
	case "low":
		return "75"
	default:
		return quality
	}
}

// parsePageRange parses "N-M" or a single "N" into a first/last page pair.
func parsePageRange(s string) (int, int, bool) {
	if s == "" {
		return 0, 0, false
	}
	if first, last, ok := strings.Cut(s, "-"); ok {
		f, err1 := strconv.Atoi(strings.TrimSpace(first))
		l, err2 := strconv.Atoi(strings.TrimSpace(last))
		if err1 != nil || err2 != nil || f < 1 || l < f {
			return 0, 0, false
		}
		return f, l, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, 0, false
	}
	return n, n, true
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
