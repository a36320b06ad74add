package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flightbot/internal/domain"
)

const topFilesLimit = 5

// FileAnalyzer reports size, count, per-extension, and largest-file
// statistics for a directory.
type FileAnalyzer struct{}

func NewFileAnalyzer() *FileAnalyzer { return &FileAnalyzer{} }

var _ domain.Tool = (*FileAnalyzer)(nil)

func (t *FileAnalyzer) Name() string { return "file_analyzer" }
func (t *FileAnalyzer) Description() string {
	return "Analyze a directory: total size, file count, per-extension statistics, and the largest files. Set recursive to descend into subdirectories."
}

type analyzerParams struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type analyzerReport struct {
	TotalSize      int64          `json:"total_size"`
	FileCount      int            `json:"file_count"`
	ExtensionStats map[string]int `json:"extension_stats"`
	LargestFiles   []fileEntry    `json:"largest_files"`
}

type fileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (t *FileAnalyzer) Execute(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
	var params analyzerParams
	if err := decodeArgs(req.Args, &params); err != nil {
		return domain.ErrorResult(err), nil
	}
	if params.Path == "" {
		return domain.ErrorResult(fmt.Errorf("missing argument: path")), nil
	}

	info, err := os.Stat(params.Path)
	if err != nil {
		return domain.ErrorResult(fmt.Errorf("stat %s: %w", params.Path, err)), nil
	}
	if !info.IsDir() {
		return domain.ErrorResult(fmt.Errorf("%s is not a directory", params.Path)), nil
	}

	report := analyzerReport{ExtensionStats: make(map[string]int)}
	files := []fileEntry{}

	err = filepath.WalkDir(params.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// The root itself is always entered; deeper directories
			// only in recursive mode.
			if !params.Recursive && path != params.Path {
				return fs.SkipDir
			}
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		report.FileCount++
		report.TotalSize += fi.Size()
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			report.ExtensionStats[ext]++
		}
		files = append(files, fileEntry{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return domain.ErrorResult(fmt.Errorf("walk %s: %w", params.Path, err)), nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	if len(files) > topFilesLimit {
		files = files[:topFilesLimit]
	}
	report.LargestFiles = files

	return domain.OKResult(report), nil
}
