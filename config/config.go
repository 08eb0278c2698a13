package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfig marks any configuration problem. Loading aborts before any
// document I/O happens, so a bad config never produces a partial index.
var ErrConfig = errors.New("invalid configuration")

type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Config is the full build + query configuration, typically read from a
// glimpse.toml (or .yaml) file. Environment variables with a GLIMPSE_ prefix
// override file values.
type Config struct {
	Input  InputConfig  `mapstructure:"input"`
	Output OutputConfig `mapstructure:"output"`
	Server ServerConfig `mapstructure:"server"`
}

// InputConfig declares the document corpus and the normalization rules
// applied while tokenizing it.
type InputConfig struct {
	BaseDirectory     string       `mapstructure:"base_directory"`
	URLPrefix         string       `mapstructure:"url_prefix"`
	TitleBoost        float64      `mapstructure:"title_boost" validate:"min=0"`
	MinimumWordLength int          `mapstructure:"minimum_word_length" validate:"min=0"`
	Stemming          bool         `mapstructure:"stemming"`
	Stopwords         []string     `mapstructure:"stopwords"`
	Files             []FileConfig `mapstructure:"files" validate:"required,min=1,dive"`
}

// FileConfig is one document source. Path is resolved against BaseDirectory
// unless it is absolute or an http(s) URL.
type FileConfig struct {
	Path         string  `mapstructure:"path" validate:"required"`
	Title        string  `mapstructure:"title"`
	URL          string  `mapstructure:"url" validate:"required"`
	Filetype     string  `mapstructure:"filetype" validate:"omitempty,oneof=text html markdown"`
	HTMLSelector string  `mapstructure:"html_selector"`
	TitleWeight  float64 `mapstructure:"title_weight" validate:"min=0"`
}

// OutputConfig controls the serialized artifact and the query-time knobs
// baked into it.
type OutputConfig struct {
	IndexPath         string  `mapstructure:"index_path"`
	ExcerptRadius     int     `mapstructure:"excerpt_radius" validate:"min=8,max=2048"`
	ExcerptsPerResult int     `mapstructure:"excerpts_per_result" validate:"min=1,max=64"`
	ResultCap         int     `mapstructure:"result_cap" validate:"min=1,max=1000"`
	FuzzyDistance     int     `mapstructure:"fuzzy_distance" validate:"min=0,max=2"`
	UnionFallback     bool    `mapstructure:"union_fallback"`
	ExactBonus        float64 `mapstructure:"exact_bonus" validate:"min=0"`
	EditPenalty       float64 `mapstructure:"edit_penalty" validate:"min=0"`
	PrefixPenalty     float64 `mapstructure:"prefix_penalty" validate:"min=0"`
	FrequencyWeight   float64 `mapstructure:"frequency_weight" validate:"min=0"`
}

// ServerConfig holds settings for the interactive demo server.
type ServerConfig struct {
	Port       string `mapstructure:"port"`
	MetadataDB string `mapstructure:"metadata_db"`
}

// Load reads the config file at path, falling back to environment variables
// for anything the file doesn't set. It never touches the documents
// themselves; any problem here is an ErrConfig.
func Load(path string) (*Config, error) {
	viperConfig := viper.New()
	setDefaults(viperConfig)
	viperConfig.SetEnvPrefix("GLIMPSE")
	viperConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConfig.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("config file %s does not exist", path)}
		}
		viperConfig.SetConfigFile(path)
		if err := viperConfig.ReadInConfig(); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("could not read config file %s: %s", path, err)}
		}
	}

	cfg := &Config{}
	if err := viperConfig.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("could not parse config: %s", err)}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.title_boost", 2.0)
	v.SetDefault("input.minimum_word_length", 1)
	v.SetDefault("input.stemming", true)

	v.SetDefault("output.index_path", "glimpse.idx")
	v.SetDefault("output.excerpt_radius", 80)
	v.SetDefault("output.excerpts_per_result", 5)
	v.SetDefault("output.result_cap", 20)
	v.SetDefault("output.fuzzy_distance", 2)
	v.SetDefault("output.union_fallback", true)
	v.SetDefault("output.exact_bonus", 4.0)
	v.SetDefault("output.edit_penalty", 1.0)
	v.SetDefault("output.prefix_penalty", 0.5)
	v.SetDefault("output.frequency_weight", 0.25)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.metadata_db", ".glimpse/metadata.db")
}
