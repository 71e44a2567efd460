package config

import (
	"os"
	"path/filepath"
)

// AppDirName is the per-user subdirectory holding traza's data and config.
const AppDirName = "traza"

func defaultDataDir() string {
	base := localDataDir()
	if base == "" {
		return AppDirName + "-data"
	}
	return filepath.Join(base, AppDirName)
}

func defaultExportDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
