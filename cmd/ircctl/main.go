// ircctl connects to every server in a config file and runs the bot on each.
//
//	ircctl [--config path | path] [--log-level level] [--metrics-dump]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/ircctl/internal/config"
	"github.com/danmuck/ircctl/internal/logging"
	"github.com/danmuck/ircctl/internal/observability"
	"github.com/danmuck/ircctl/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "ircctl.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ircctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		logLevel    string
		metricsDump bool
	)
	flags := pflag.NewFlagSet("ircctl", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to the TOML config (default "+defaultConfigPath+")")
	flags.StringVar(&logLevel, "log-level", "", "override the log level (trace|debug|info|warn|error)")
	flags.BoolVar(&metricsDump, "metrics-dump", false, "write metrics in prometheus text format to stderr on exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path, err := resolveConfigPath(configPath, flags.Args())
	if err != nil {
		return err
	}

	logging.ConfigureRuntime()
	if logLevel != "" && !logging.SetLevel(logLevel) {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	observability.RegisterMetrics()
	log.Info().Str("config", path).Int("servers", len(cfg.Servers)).Msg("ircctl.start")

	runErr := service.New(cfg).RunUntilSignal()
	if metricsDump {
		if err := observability.WriteText(os.Stderr); err != nil {
			log.Error().Err(err).Msg("ircctl.metrics.dump")
		}
	}
	if runErr != nil {
		return runErr
	}
	log.Info().Msg("ircctl.stop")
	return nil
}

// resolveConfigPath accepts the path as a flag or as the only positional
// argument, not both.
func resolveConfigPath(flagPath string, positional []string) (string, error) {
	switch {
	case len(positional) > 1:
		return "", fmt.Errorf("unexpected argument: %s", positional[1])
	case len(positional) == 1 && flagPath != "":
		return "", fmt.Errorf("config given twice: --config %s and %s", flagPath, positional[0])
	case len(positional) == 1:
		return positional[0], nil
	case flagPath != "":
		return flagPath, nil
	}
	return defaultConfigPath, nil
}
