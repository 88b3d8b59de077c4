package config

import (
	"github.com/danmuck/defmt-print/internal/printer"
	"github.com/danmuck/defmt-print/internal/protocol/frame"
	"github.com/danmuck/defmt-print/internal/sink"
	"github.com/danmuck/defmt-print/internal/table"
)

// SinkOptions resolves output settings; outIsTerminal decides "auto" color.
func (c Config) SinkOptions(outIsTerminal bool) sink.Options {
	level, err := table.ParseLevel(c.Output.MinLevel)
	if err != nil {
		level = table.LevelTrace
	}
	noColor := false
	switch c.Output.Color {
	case ColorNever:
		noColor = true
	case ColorAuto, "":
		noColor = !outIsTerminal
	}
	return sink.Options{
		Format:        c.Output.Format,
		NoColor:       noColor,
		MinLevel:      level,
		HideTimestamp: !c.Output.Timestamp,
		HideLocation:  !c.Output.Location,
	}
}

func (c Config) PrinterOptions() printer.Options {
	return printer.Options{
		ReadBufferSize: c.ReadBufferSize,
		Limits:         frame.Limits{MaxSliceLen: c.Decoder.MaxSliceLen},
	}
}
