package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file. Explicit paths are
// tried first; otherwise the working directory and the executable's
// directory are searched. Variables already set are not overwritten.
// It reports the file it loaded, or "" when none was found.
func LoadEnv(paths ...string) string {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			slog.Debug("config: no .env at given paths", "paths", paths, "error", err)
			return ""
		}
		return paths[0]
	}

	for _, p := range envCandidates() {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("config: failed to load .env", "path", p, "error", err)
			return ""
		}
		slog.Debug("config: loaded .env", "path", p)
		return p
	}
	return ""
}

func envCandidates() []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			candidates = append(candidates, p)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, ".env"))
	}
	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		add(filepath.Join(filepath.Dir(exe), ".env"))
	}
	return candidates
}
