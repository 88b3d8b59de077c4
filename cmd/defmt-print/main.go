package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/defmt-print/internal/config"
	"github.com/danmuck/defmt-print/internal/elf2table"
	"github.com/danmuck/defmt-print/internal/location"
	"github.com/danmuck/defmt-print/internal/logging"
	"github.com/danmuck/defmt-print/internal/observability"
	"github.com/danmuck/defmt-print/internal/printer"
	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/sink"
	"github.com/danmuck/defmt-print/internal/source"
)

const toolVersion = "0.1.0"

var versionText = toolVersion + "\nsupported defmt version: " + frame.Version

func main() {
	logging.ConfigureRuntime()
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "defmt-print: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	elf         string
	config      string
	input       string
	compression string
	format      string
	color       string
	level       string
	noLocation  bool
	noTimestamp bool
	bufferSize  int
	metricsFile string
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "defmt-print -e <elf> [flags]",
		Short:         "Decode a defmt log stream against the firmware ELF",
		Long:          "defmt-print reads encoded log frames from stdin or a capture file and prints them using the format strings and debug info of the firmware image.",
		Version:       versionText,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(f.elf, cfg, stdout)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetOut(stdout)

	fs := cmd.Flags()
	fs.StringVarP(&f.elf, "elf", "e", "", "firmware ELF carrying the .defmt table")
	fs.StringVarP(&f.config, "config", "c", "", "TOML config file")
	fs.StringVarP(&f.input, "input", "i", "", "capture file to decode instead of stdin")
	fs.StringVar(&f.compression, "compression", "", "input compression: auto|none|zstd|lz4")
	fs.StringVar(&f.format, "format", "", "output format: console|json")
	fs.StringVar(&f.color, "color", "", "color output: auto|always|never")
	fs.StringVar(&f.level, "level", "", "lowest level printed: trace|debug|info|warn|error")
	fs.BoolVar(&f.noLocation, "no-location", false, "omit file, line and module")
	fs.BoolVar(&f.noTimestamp, "no-timestamp", false, "omit device timestamps")
	fs.IntVar(&f.bufferSize, "buffer-size", 0, "bytes requested per read")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write prometheus textfile metrics here at exit")
	_ = cmd.MarkFlagRequired("elf")
	return cmd
}

// resolveConfig layers explicitly set flags over the config file over
// the defaults.
func resolveConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	fs := cmd.Flags()
	if fs.Changed("input") {
		cfg.Input.Path = f.input
	}
	if fs.Changed("compression") {
		cfg.Input.Compression = f.compression
	}
	if fs.Changed("format") {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(f.format))
	}
	if fs.Changed("color") {
		cfg.Output.Color = strings.ToLower(strings.TrimSpace(f.color))
	}
	if fs.Changed("level") {
		cfg.Output.MinLevel = f.level
	}
	if f.noLocation {
		cfg.Output.Location = false
	}
	if f.noTimestamp {
		cfg.Output.Timestamp = false
	}
	if fs.Changed("buffer-size") {
		cfg.ReadBufferSize = f.bufferSize
	}
	if fs.Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func run(elfPath string, cfg config.Config, stdout io.Writer) (err error) {
	image, err := os.ReadFile(elfPath)
	if err != nil {
		return fmt.Errorf("read elf (%s): %w", elfPath, err)
	}
	tbl, err := elf2table.Parse(image)
	if err != nil {
		if errors.Is(err, elf2table.ErrNoDefmtData) {
			return fmt.Errorf("%s: %w", elfPath, err)
		}
		return err
	}
	log.Debug().Int("entries", tbl.Len()).Str("version", tbl.Version()).Msg("loaded defmt table")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	locs, locErr := elf2table.Locations(image, tbl)
	joiner := joinerFor(locs, locErr, tbl.Indices(), cwd)

	out, err := sink.New(stdout, cfg.SinkOptions(writerIsTerminal(stdout)))
	if err != nil {
		return err
	}
	in, err := source.Open(cfg.Input.Path, cfg.Input.Compression)
	if err != nil {
		return err
	}
	defer in.Close()

	if cfg.MetricsFile != "" {
		defer func() {
			if werr := observability.WriteTextfile(cfg.MetricsFile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}
	return printer.New(tbl, joiner, out, cfg.PrinterOptions()).Run(in)
}

// joinerFor disables locations with one warning when they could not be read.
func joinerFor(locs location.Table, locErr error, indices []uint64, cwd string) *location.Joiner {
	if locErr != nil {
		return location.Unavailable(locErr)
	}
	return location.NewJoiner(locs, indices, cwd)
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && logging.IsTerminal(f)
}
