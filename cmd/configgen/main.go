package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/danmuck/defmt-print/internal/config"
	"github.com/danmuck/defmt-print/internal/logging"
)

const defaultPath = "defmt-print.toml"

func main() {
	output := flag.StringP("output", "o", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.StringP("input", "i", defaultPath, "config path for validation")
	force := flag.BoolP("force", "f", false, "overwrite existing config file")
	toStdout := flag.Bool("stdout", false, "print the template instead of writing a file")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*validate, *toStdout, *input, *output, *force); err != nil {
		log.Error().Err(err).Msg("configgen failed")
		os.Exit(1)
	}
}

func run(validate, toStdout bool, input, output string, force bool) error {
	if validate {
		if _, err := config.Load(input); err != nil {
			return err
		}
		log.Info().Str("path", input).Msg("validated config")
		return nil
	}
	if toStdout {
		template, err := config.Template()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, template)
		return err
	}
	if err := config.WriteTemplate(output, force); err != nil {
		return err
	}
	log.Info().Str("path", output).Msg("wrote config template")
	return nil
}
