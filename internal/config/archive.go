package config

// ArchiveConfig configures the local transcript archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite database file
	Keep    int    `yaml:"keep"` // sessions retained per meeting, 0 = all
}

// DefaultArchiveConfig returns archive defaults.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled: true,
		Path:    "meetscribe.db",
	}
}
