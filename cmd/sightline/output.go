package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/sightline/core"
	"github.com/signalsfoundry/sightline/internal/rpc"
)

// writeResult renders res as text, json or yaml. The structured formats use
// the same shape as the gRPC response.
func writeResult(w io.Writer, format string, res *core.SessionResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rpc.NewSessionResponse(res))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rpc.NewSessionResponse(res)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, res)
	}
}

func writeText(w io.Writer, res *core.SessionResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session %s  observer %s\n\n", res.SessionID, res.Observer)
	fmt.Fprintln(tw, "TARGET\tID\tOUTCOME\tRANGE (m)\tELEV (deg)\tVISIBLE\tOBSTRUCTION")
	for _, p := range res.Pairs {
		obstruction := "-"
		visible := "-"
		if c := p.Classification; c != nil {
			visible = fmt.Sprintf("%.1f%%", 100*c.VisibleFraction())
			if c.Obstruction != nil {
				obstruction = fmt.Sprintf("%s at %.3f m", layerName(c.Obstruction.Layer), c.Obstruction.T)
			}
		} else if p.Err != nil {
			obstruction = p.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.2f\t%s\t%s\n",
			p.Label, dash(p.TargetID), p.Outcome(), p.SlantRange, p.ElevationDeg, visible, obstruction)
	}
	s := res.Summary
	fmt.Fprintf(tw, "\n%d targets: %d visible, %d occluded, %d degenerate, %d failed (%s)\n",
		s.Total, s.Visible, s.Occluded, s.Degenerate, s.Failed, res.Duration)
	return tw.Flush()
}

func layerName(l string) string {
	if l == "" {
		return "scene"
	}
	return l
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
