package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllLogsPath returns dir/save_all_results[_suffix].txt.
func AllLogsPath(dir, suffix string) string {
	if suffix != "" {
		suffix = "_" + suffix
	}
	return filepath.Join(dir, "save_all_results"+suffix+".txt")
}

// SaveAllLogs replaces the aggregate log file in dir with logs and returns
// its path.
func SaveAllLogs(dir, logs, suffix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	path := AllLogsPath(dir, suffix)
	if err := os.WriteFile(path, []byte(logs), 0o644); err != nil {
		return "", fmt.Errorf("write logs: %w", err)
	}
	return path, nil
}

const maxNameRunes = 100

// SafeName turns s into a single path element usable as a log folder name.
func SafeName(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	safe := replacer.Replace(s)

	// Drop control characters.
	safe = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, safe)

	if safe == "" || safe == "." || safe == ".." {
		return "unknown"
	}
	if r := []rune(safe); len(r) > maxNameRunes {
		safe = string(r[:maxNameRunes])
	}
	return safe
}
