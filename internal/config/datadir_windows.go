package config

import "os"

func localDataDir() string {
	return os.Getenv("LOCALAPPDATA")
}
