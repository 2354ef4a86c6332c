package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/sightline/internal/config"
	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/rpc"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func sampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sightline.yaml")
	if _, err := execute(t, "init", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	return path
}

const wallConfig = `
observer:
  id: origin
  ecef: {x: 0, y: 0, z: 0}
targets:
  - id: blocked
    ecef: {x: 10, y: 0, z: 0}
  - id: clear
    ecef: {x: 0, y: 10, z: 0}
  - id: self
    ecef: {x: 0, y: 0, z: 0}
scene:
  layers:
    - name: wall
      type: stl
      stl: {path: wall.stl}
`

const wallSTL = `solid wall
facet normal -1 0 0
  outer loop
    vertex 4 -1 -1
    vertex 4 1 -1
    vertex 4 1 1
  endloop
endfacet
facet normal -1 0 0
  outer loop
    vertex 4 -1 -1
    vertex 4 1 1
    vertex 4 -1 1
  endloop
endfacet
endsolid wall
`

func writeWallConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wall.stl"), []byte(wallSTL), 0o644); err != nil {
		t.Fatalf("write stl: %v", err)
	}
	path := filepath.Join(dir, "session.yaml")
	if err := os.WriteFile(path, []byte(wallConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestInitWritesSampleAndRefusesOverwrite(t *testing.T) {
	path := sampleConfig(t)

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Targets) != 6 {
		t.Fatalf("sample has %d targets, want 6", len(cfg.Targets))
	}

	if _, err := execute(t, "init", path); err == nil {
		t.Fatalf("expected error when the file exists")
	}
	if _, err := execute(t, "init", "--force", path); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestRunSampleJSON(t *testing.T) {
	path := sampleConfig(t)

	out, err := execute(t, "run", "--config", path, "--format", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var resp rpc.SessionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(resp.Pairs) != 6 || resp.Summary.Total != 6 {
		t.Fatalf("got %d pairs, summary %+v", len(resp.Pairs), resp.Summary)
	}
	if resp.Summary.Failed != 0 || resp.Summary.Degenerate != 0 {
		t.Fatalf("unexpected failures: %+v", resp.Summary)
	}
	for i, p := range resp.Pairs {
		if p.Index != i || p.TargetID == "" {
			t.Fatalf("pair %d = %+v", i, p)
		}
	}
}

func TestRunWallText(t *testing.T) {
	out, err := execute(t, "run", "-c", writeWallConfig(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Target 1", "occluded", "wall at 4.000 m", "Target 2", "visible", "degenerate", "3 targets: 1 visible, 1 occluded, 1 degenerate, 0 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunWallYAMLToFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "result.yaml")
	if _, err := execute(t, "run", "-c", writeWallConfig(t), "--format", "yaml", "--out", outPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var resp rpc.SessionResponse
	if err := yaml.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if resp.Pairs[0].Obstruction == nil || resp.Pairs[0].Obstruction.Layer != "wall" {
		t.Fatalf("pair 0 = %+v", resp.Pairs[0])
	}
	if resp.Pairs[2].Status != "degenerate" {
		t.Fatalf("pair 2 status = %q, want degenerate", resp.Pairs[2].Status)
	}
}

func TestRunWallCZML(t *testing.T) {
	out, err := execute(t, "run", "-c", writeWallConfig(t), "--format", "czml")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var packets []map[string]any
	if err := json.Unmarshal([]byte(out), &packets); err != nil {
		t.Fatalf("decode czml: %v", err)
	}
	ids := make(map[string]bool)
	for _, p := range packets {
		ids[p["id"].(string)] = true
	}
	for _, want := range []string{"document", "observer", "target-1-visible", "target-1-occluded", "target-2-occluded"} {
		if !ids[want] {
			t.Fatalf("czml missing packet %q: %v", want, ids)
		}
	}
}

func TestRunSetupErrors(t *testing.T) {
	if _, err := execute(t, "run", "-c", writeWallConfig(t), "--format", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := execute(t, "run", "-c", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config")
	}
	if _, err := execute(t, "run"); err == nil {
		t.Fatalf("expected error for a config without observer or targets")
	}
}

func TestRunRejectsNaNTargetBeforeWritingOutput(t *testing.T) {
	path := sampleConfig(t)
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg.Targets[2].ECEF.X = math.NaN()
	if err := config.WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "result.json")
	_, err = execute(t, "run", "-c", path, "--format", "json", "--out", outPath)
	if !errors.Is(err, config.ErrInvalidConfig) || !strings.Contains(err.Error(), "targets[2]") {
		t.Fatalf("run = %v, want invalid config for targets[2]", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatalf("output file created for a rejected config: %v", statErr)
	}
}

func TestServeClassifiesAndStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Sample()
	cfg.Server.MetricsAddr = ""
	reg := prometheus.NewRegistry()

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(serveCtx, cfg, "", logging.Noop(), lis, reg)
	}()

	conn, err := rpc.Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	resp, err := rpc.NewClient(conn).ClassifySession(ctx, rpc.SessionRequest{
		Observer: &rpc.Point{X: cfg.Observer.ECEF.X, Y: cfg.Observer.ECEF.Y, Z: cfg.Observer.ECEF.Z},
		Targets: []rpc.TargetSpec{
			{ID: "up", X: 2 * cfg.Observer.ECEF.X, Y: 2 * cfg.Observer.ECEF.Y, Z: 2 * cfg.Observer.ECEF.Z},
			{ID: "antipode", X: -cfg.Observer.ECEF.X, Y: -cfg.Observer.ECEF.Y, Z: -cfg.Observer.ECEF.Z},
		},
	})
	if err != nil {
		t.Fatalf("ClassifySession: %v", err)
	}
	if resp.Pairs[0].Outcome != "visible" {
		t.Fatalf("zenith target = %+v, want visible", resp.Pairs[0])
	}
	if resp.Pairs[1].Outcome != "occluded" || resp.Pairs[1].Obstruction.Layer != "earth" {
		t.Fatalf("antipodal target = %+v, want occluded by earth", resp.Pairs[1])
	}

	if got := gaugeValue(t, reg, "sightline_scene_layers"); got != 1 {
		t.Fatalf("sightline_scene_layers = %v, want 1", got)
	}

	stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("serve did not stop")
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("%s not registered", name)
	return 0
}
