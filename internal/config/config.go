package config

import (
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	KB        KBConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	EmbedModel  string
	MaxTokens   int
	Temperature float64
}

type RetrievalConfig struct {
	TopK int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	UploadDir    string
}

type KBConfig struct {
	Path string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8620,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-3.5-turbo",
			EmbedModel:  "text-embedding-3-small",
			MaxTokens:   1000,
			Temperature: 0.7,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			UploadDir:    filepath.Join(dataDir, "rag", "uploads"),
		},
		KB: KBConfig{
			Path: "kb/rights_sg.yaml",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/hellofriends/config.json and applies environment variable
// overrides (HF_*). Secrets (the OpenAI API key and the admin API token) are
// environment-only and never touch the config file.
//
// A missing API key is not an error: the assistant runs in fallback mode and
// the retriever uses the local embedder.
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
