package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/smriti/data/pages.db"
	}
	if cfg.Embedding.ProviderURL == "" {
		cfg.Embedding.ProviderURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Index.MaxElements == 0 {
		cfg.Index.MaxElements = 10000
	}
	if cfg.Index.M == 0 {
		cfg.Index.M = 16
	}
	if cfg.Index.EfConstruction == 0 {
		cfg.Index.EfConstruction = 200
	}
	if cfg.Index.EfSearch == 0 {
		cfg.Index.EfSearch = 100
	}
	if cfg.Search.ResultCount == 0 {
		cfg.Search.ResultCount = 5
	}
	// AutoIndex defaults to true when unset (nil).
	if cfg.Search.AutoIndex == nil {
		t := true
		cfg.Search.AutoIndex = &t
	}
}
