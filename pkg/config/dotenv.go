package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads the first .env file found. Variables already present in
// the process environment are not overridden.
func LoadDotEnv() (string, error) {
	envFiles := []string{
		".env",
		"../.env",
	}

	if exe, err := os.Executable(); err == nil {
		envFiles = append(envFiles, filepath.Join(filepath.Dir(exe), ".env"))
	}

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return "", fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return envFile, nil
	}

	return "", nil
}
