package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/sightline/internal/config"
	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/observability"
)

// skipConfigAnnotation marks commands that must not read a config file.
const skipConfigAnnotation = "sightline/skip-config"

// app carries state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	v       *viper.Viper
	cfgPath string
	cfg     *config.Config
	log     logging.Logger

	shutdownTracing func(context.Context) error
}

// baseDir is where relative scene paths are resolved.
func (a *app) baseDir() string {
	if a.cfgPath == "" {
		return ""
	}
	return filepath.Dir(a.cfgPath)
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper(), log: logging.Noop()}

	root := &cobra.Command{
		Use:           "sightline",
		Short:         "Line-of-sight visibility between an observer and its targets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdownTracing != nil {
				observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.log)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "path to a YAML or JSON configuration file")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(newRunCmd(a), newServeCmd(a), newInitCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.cfgPath
	if cmd.Annotations[skipConfigAnnotation] != "" {
		path = ""
	}
	cfg, err := config.Load(a.v, path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	a.log = logging.New(logCfg)

	tracing := cfg.ObservabilityTracing()
	tracing.Output = cmd.ErrOrStderr()
	shutdown, err := observability.InitTracing(cmd.Context(), tracing, a.log)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}
