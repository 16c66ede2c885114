package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads the first .env found in the working directory or one of
// its two parents. Variables already set in the environment win. It returns
// the absolute path loaded, or "" when no file was found, which is normal in
// containers.
func LoadDotEnv() string {
	var envPaths []string
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	} else {
		envPaths = append(envPaths, ".env")
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			absPath, _ := filepath.Abs(envPath)
			return absPath
		}
	}
	return ""
}
