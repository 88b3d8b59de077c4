package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	pelletier "github.com/pelletier/go-toml/v2"

	"github.com/danmuck/defmt-print/internal/printer"
	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/sink"
	"github.com/danmuck/defmt-print/internal/source"
	"github.com/danmuck/defmt-print/internal/table"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type Config struct {
	ReadBufferSize int           `toml:"read_buffer_size" comment:"bytes requested per read from the input"`
	MetricsFile    string        `toml:"metrics_file" comment:"prometheus textfile written at exit; empty disables"`
	Input          InputConfig   `toml:"input"`
	Output         OutputConfig  `toml:"output"`
	Decoder        DecoderConfig `toml:"decoder"`
}

type InputConfig struct {
	Path        string `toml:"path" comment:"capture file; empty or \"-\" reads stdin"`
	Compression string `toml:"compression" comment:"auto | none | zstd | lz4"`
}

type OutputConfig struct {
	Format    string `toml:"format" comment:"console | json"`
	Color     string `toml:"color" comment:"auto | always | never"`
	MinLevel  string `toml:"min_level" comment:"trace | debug | info | warn | error"`
	Timestamp bool   `toml:"timestamp" comment:"show device timestamps"`
	Location  bool   `toml:"location" comment:"show file, line and module"`
}

type DecoderConfig struct {
	MaxSliceLen uint64 `toml:"max_slice_len" comment:"largest str or [u8] argument accepted, in bytes"`
}

func Default() Config {
	return Config{
		ReadBufferSize: printer.DefaultReadBufferSize,
		Input: InputConfig{
			Path:        source.Stdin,
			Compression: source.CompressionAuto,
		},
		Output: OutputConfig{
			Format:    sink.FormatConsole,
			Color:     ColorAuto,
			MinLevel:  "trace",
			Timestamp: true,
			Location:  true,
		},
		Decoder: DecoderConfig{
			MaxSliceLen: frame.DefaultLimits().MaxSliceLen,
		},
	}
}

// Load overlays the file at path onto Default. Keys the config does not
// know are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config has unknown keys (%s): %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("input", "path") {
		cfg.Input.Path = strings.TrimSpace(cfg.Input.Path)
	}
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	cfg.Output.Color = strings.ToLower(strings.TrimSpace(cfg.Output.Color))
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive, got %d", cfg.ReadBufferSize)
	}
	if cfg.Decoder.MaxSliceLen == 0 {
		return fmt.Errorf("decoder.max_slice_len must be positive")
	}
	if _, err := source.Resolve(cfg.Input.Path, cfg.Input.Compression); err != nil {
		return fmt.Errorf("input.compression: %w", err)
	}
	switch cfg.Output.Format {
	case sink.FormatConsole, sink.FormatJSON:
	default:
		return fmt.Errorf("output.format must be %s or %s, got %q", sink.FormatConsole, sink.FormatJSON, cfg.Output.Format)
	}
	switch cfg.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("output.color must be auto, always or never, got %q", cfg.Output.Color)
	}
	if _, err := table.ParseLevel(cfg.Output.MinLevel); err != nil {
		return fmt.Errorf("output.min_level: %w", err)
	}
	return nil
}

// Template renders the default configuration as commented TOML.
func Template() (string, error) {
	data, err := pelletier.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
