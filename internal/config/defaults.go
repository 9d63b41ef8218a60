package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite3"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "/usr/local/var/bukken/data/db/units.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/bukken/data/indices/bleve"
	}
	if cfg.Storage.BucketDir == "" {
		cfg.Storage.BucketDir = "/usr/local/var/bukken/data/bucket"
	}
	if cfg.Upload.MaxUploadBytes == 0 {
		cfg.Upload.MaxUploadBytes = 50 << 20
	}
	if cfg.Upload.KeyField == "" {
		cfg.Upload.KeyField = "Unit Name"
	}
	if cfg.Upload.HeaderPolicy == "" {
		cfg.Upload.HeaderPolicy = "exclude"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".csv", ".xls", ".xlsx"}
	}
}
