package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var sensitivePaths = []string{
	"/etc/shadow",
	"/etc/passwd",
	"/etc/sudoers",
	"/.ssh/",
}

var typicalLogDirs = []string{"/var/log", "/usr/local/nginx", "/opt/nginx", "/tmp"}

// validateLogPath rejects credential files and warns about unusual
// locations. The file itself may not exist yet.
func validateLogPath(path string, logger *slog.Logger) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	evalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot evaluate symlinks: %w", err)
		}
		evalPath = absPath
	}

	for _, p := range sensitivePaths {
		if strings.Contains(evalPath, p) {
			return errors.New("access denied: cannot read sensitive system file")
		}
	}
	if info, err := os.Stat(evalPath); err == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory", evalPath)
	}

	cwd, _ := os.Getwd()
	for _, dir := range append(typicalLogDirs, cwd) {
		if dir != "" && strings.HasPrefix(evalPath, dir) {
			return nil
		}
	}
	logger.Warn("reading log file from unusual location", slog.String("path", evalPath))
	return nil
}
