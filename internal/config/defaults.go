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
		cfg.Storage.DatabasePath = "/usr/local/var/dummi/data/db/dummi.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/dummi/data/indices/content.ivf"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Recommend.TopK == 0 {
		cfg.Recommend.TopK = 10
	}
	if cfg.Recommend.SimilarityThreshold == 0 {
		cfg.Recommend.SimilarityThreshold = 0.3
	}
	if cfg.Recommend.ColdStartThreshold == 0 {
		cfg.Recommend.ColdStartThreshold = 5
	}
	if cfg.Recommend.CFWeight == 0 {
		cfg.Recommend.CFWeight = 0.5
	}
	if cfg.Recommend.NFactors == 0 {
		cfg.Recommend.NFactors = 50
	}
	if cfg.Recommend.NEpochs == 0 {
		cfg.Recommend.NEpochs = 20
	}
	if cfg.Recommend.NList == 0 {
		cfg.Recommend.NList = 100
	}
	if cfg.Recommend.NProbe == 0 {
		cfg.Recommend.NProbe = 10
	}
}
