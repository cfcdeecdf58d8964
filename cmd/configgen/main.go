package main

import (
	"log"

	"github.com/danmuck/ircctl/internal/config"
	"github.com/spf13/pflag"
)

const defaultPath = "ircctl.toml"

func main() {
	output := pflag.String("output", defaultPath, "output path for the config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.String("input", defaultPath, "config path for validation")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (%d servers)", *input, len(cfg.Servers))
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote config template to %s", *output)
}
