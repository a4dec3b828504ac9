package ctxengine

// Config holds the tuning knobs for the assembler.
type Config struct {
	// CharsPerToken feeds the default CharEstimator.
	CharsPerToken float64 `yaml:"chars_per_token"`

	// MaxScanChars caps each fragment's content (in bytes, cut on a rune
	// boundary) before redaction and estimation.
	MaxScanChars int `yaml:"max_scan_chars"`
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg Config) withDefaults() Config {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = 4.0
	}
	if cfg.MaxScanChars <= 0 {
		cfg.MaxScanChars = 65536
	}
	return cfg
}
