package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvWithFallback ensures the specified environment variable is present.
// It loads, in order, a ".env" file from each of dirs and then the fallback
// file at $HOME/.local/bin/.env. godotenv never overwrites variables that are
// already set, so the process environment always wins and earlier files win
// over later ones.
//
// Returns the value when found, or a descriptive error listing the files that
// were tried.
func LoadEnvWithFallback(name string, dirs ...string) (string, error) {
	var tried []string
	candidates := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		if d != "" {
			candidates = append(candidates, filepath.Join(d, ".env"))
		}
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", ".env"))
	}

	for _, p := range candidates {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
		tried = append(tried, p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			_ = godotenv.Load(p)
		}
	}

	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	if len(tried) == 0 {
		return "", fmt.Errorf("environment variable %q not set and no .env location resolved", name)
	}
	return "", fmt.Errorf("environment variable %q not set; tried %s", name, strings.Join(tried, ", "))
}

// ParseBool is the lenient boolean parser used by the config file.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// EnvString returns the trimmed variable, or def when unset or blank.
func EnvString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}
