package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override settings,
// e.g. LAYERGUARD_FORMATTER.
const EnvPrefix = "LAYERGUARD"

// DefaultCacheDir is the reference cache directory, relative to the depfile.
const DefaultCacheDir = ".layerguard.cache"

// Settings are the per-run options that do not belong in the depfile.
type Settings struct {
	Config          string `mapstructure:"config"`
	CacheDir        string `mapstructure:"cache_dir"`
	NoCache         bool   `mapstructure:"no_cache"`
	Strict          bool   `mapstructure:"strict"`
	Workers         int    `mapstructure:"workers"`
	Formatter       string `mapstructure:"formatter"`
	Output          string `mapstructure:"output"`
	ReportUncovered bool   `mapstructure:"report_uncovered"`
	ReportSkipped   bool   `mapstructure:"report_skipped"`
	FailOnUncovered bool   `mapstructure:"fail_on_uncovered"`
	Verbose         bool   `mapstructure:"verbose"`
	Trace           bool   `mapstructure:"trace"`
}

// Formatters lists the accepted --formatter values.
var Formatters = []string{"console", "json", "toon", "baseline"}

// NewViper returns a viper instance with defaults and environment lookup
// configured. Callers bind their flags to it.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", DefaultFile)
	v.SetDefault("cache_dir", DefaultCacheDir)
	v.SetDefault("no_cache", false)
	v.SetDefault("strict", false)
	v.SetDefault("workers", runtime.GOMAXPROCS(0))
	v.SetDefault("formatter", "console")
	v.SetDefault("output", "")
	v.SetDefault("report_uncovered", true)
	v.SetDefault("report_skipped", false)
	v.SetDefault("fail_on_uncovered", false)
	v.SetDefault("verbose", false)
	v.SetDefault("trace", false)
	return v
}

// LoadSettings resolves settings from v and validates them.
func LoadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, &Error{Message: "invalid settings", Cause: err}
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if !slices.Contains(Formatters, s.Formatter) {
		return Settings{}, &Error{
			Path:    "formatter",
			Message: fmt.Sprintf("unknown formatter %q (want one of %s)", s.Formatter, strings.Join(Formatters, ", ")),
		}
	}
	return s, nil
}
