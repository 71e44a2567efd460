package config

type Config struct {
	Storage StorageConfig
	Export  ExportConfig
	List    ListConfig
	Server  ServerConfig
	Viewer  ViewerConfig
	Log     LogConfig
}

type StorageConfig struct {
	DataDir string
}

type ExportConfig struct {
	Dir  string
	Gzip bool
}

type ListConfig struct {
	Limit int
}

type ServerConfig struct {
	Port int
}

type ViewerConfig struct {
	OpenBrowser bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Export: ExportConfig{
			Dir: defaultExportDir(),
		},
		List: ListConfig{
			Limit: 100,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Viewer: ViewerConfig{
			OpenBrowser: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration once for this process: built-in defaults,
// then the JSON file at $XDG_CONFIG_HOME/traza/config.json (or the platform
// equivalent), then TRAZA_* environment variables.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
