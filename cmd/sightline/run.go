package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/sightline/core"
	"github.com/signalsfoundry/sightline/internal/czml"
	"github.com/signalsfoundry/sightline/internal/logging"
)

var outputFormats = []string{"text", "json", "yaml", "czml"}

func newRunCmd(a *app) *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify every configured target once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if !validFormat(format) {
				return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(outputFormats, ", "))
			}
			if err := a.cfg.ValidateSession(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runSession(cmd, a, format, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "text", "output format: "+strings.Join(outputFormats, ", "))
	flags.StringVarP(&outPath, "out", "o", "", "write output to this file instead of stdout")
	flags.Int("workers", 0, "pairs classified concurrently (overrides session.workers)")
	flags.Bool("omit-marker", false, "leave the occluded polyline empty for fully visible targets")
	_ = a.v.BindPFlag("session.workers", flags.Lookup("workers"))
	_ = a.v.BindPFlag("session.omit_marker", flags.Lookup("omit-marker"))
	return cmd
}

func validFormat(f string) bool {
	for _, v := range outputFormats {
		if f == v {
			return true
		}
	}
	return false
}

// runSession builds the scene from a validated config and classifies the
// session. Pair failures are part of the output; only setup problems and
// interruption return an error.
func runSession(cmd *cobra.Command, a *app, format string, out io.Writer) error {
	ctx := cmd.Context()
	cfg := a.cfg

	reg, err := cfg.Scene.BuildRegistry(a.baseDir())
	if err != nil {
		return err
	}
	clock, err := cfg.Clock()
	if err != nil {
		return err
	}

	opts := []core.SessionOption{
		core.WithWorkers(cfg.Session.Workers),
		core.WithQueryTimeout(cfg.Session.QueryTimeout),
		core.WithClassifier(core.NewClassifier(
			core.WithOmitMarker(cfg.Session.OmitMarker),
			core.WithClipToTarget(cfg.Session.ClipToTarget),
		)),
		core.WithLogger(a.log),
	}
	var doc *czml.Writer
	if format == "czml" {
		doc = czml.NewWriter("sightline")
		opts = append(opts, core.WithPresenter(doc))
	}

	epoch := clock.Now()
	a.log.Info(ctx, "running session",
		logging.Int("targets", len(cfg.Targets)),
		logging.Int("layers", len(reg.Layers())),
		logging.String("epoch", epoch.Format(time.RFC3339)),
	)

	runner := core.NewSessionRunner(reg, opts...)
	res, runErr := runner.RunSession(ctx, cfg.SessionObserver(), cfg.SessionTargets(), epoch)
	if res == nil {
		return runErr
	}

	if doc != nil {
		if runErr == nil {
			_, err = doc.WriteTo(out)
		}
	} else {
		err = writeResult(out, format, res)
	}
	if err != nil {
		return fmt.Errorf("write %s output: %w", format, err)
	}
	return runErr
}
