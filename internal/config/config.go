// Package config loads sightline session and server configuration with
// viper. Values come from a YAML or JSON file, SIGHTLINE_* environment
// variables and built-in defaults, in that order of precedence after flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/observability"
	"github.com/signalsfoundry/sightline/model"
	"github.com/signalsfoundry/sightline/timectrl"
)

// EnvPrefix prefixes every environment override, e.g. SIGHTLINE_SESSION_WORKERS.
const EnvPrefix = "SIGHTLINE"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full sightline configuration.
type Config struct {
	Session  SessionConfig `yaml:"session" mapstructure:"session"`
	Observer SiteConfig    `yaml:"observer" mapstructure:"observer"`
	Targets  []SiteConfig  `yaml:"targets" mapstructure:"targets"`
	Scene    SceneConfig   `yaml:"scene" mapstructure:"scene"`
	Server   ServerConfig  `yaml:"server" mapstructure:"server"`
	Log      LogConfig     `yaml:"log" mapstructure:"log"`
	Tracing  TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// SessionConfig tunes how a session is classified.
type SessionConfig struct {
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	QueryTimeout time.Duration `yaml:"query_timeout" mapstructure:"query_timeout"`
	// Epoch is an RFC 3339 instant used to resolve TLE targets; empty means now.
	Epoch        string `yaml:"epoch,omitempty" mapstructure:"epoch"`
	OmitMarker   bool   `yaml:"omit_marker" mapstructure:"omit_marker"`
	ClipToTarget bool   `yaml:"clip_to_target" mapstructure:"clip_to_target"`
}

// SiteConfig places an observer or target. Exactly one of ECEF, Geodetic or
// TLE must be set.
type SiteConfig struct {
	ID       string          `yaml:"id,omitempty" mapstructure:"id"`
	Name     string          `yaml:"name,omitempty" mapstructure:"name"`
	NoradID  uint32          `yaml:"norad_id,omitempty" mapstructure:"norad_id"`
	ECEF     *ECEFConfig     `yaml:"ecef,omitempty" mapstructure:"ecef"`
	Geodetic *GeodeticConfig `yaml:"geodetic,omitempty" mapstructure:"geodetic"`
	TLE      *TLEConfig      `yaml:"tle,omitempty" mapstructure:"tle"`
}

// ECEFConfig is a position in ECEF metres.
type ECEFConfig struct {
	X float64 `yaml:"x" mapstructure:"x"`
	Y float64 `yaml:"y" mapstructure:"y"`
	Z float64 `yaml:"z" mapstructure:"z"`
}

// GeodeticConfig is a WGS84 latitude/longitude in degrees and height in metres.
type GeodeticConfig struct {
	Lat    float64 `yaml:"lat" mapstructure:"lat"`
	Lon    float64 `yaml:"lon" mapstructure:"lon"`
	Height float64 `yaml:"height" mapstructure:"height"`
}

// TLEConfig holds a two-line element set.
type TLEConfig struct {
	Line1 string `yaml:"line1" mapstructure:"line1"`
	Line2 string `yaml:"line2" mapstructure:"line2"`
}

// ServerConfig configures `sightline serve`.
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" mapstructure:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	MaxWorkers  int    `yaml:"max_workers" mapstructure:"max_workers"`
	MaxTargets  int    `yaml:"max_targets" mapstructure:"max_targets"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint    string  `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// NewViper returns a viper instance carrying defaults and SIGHTLINE_*
// environment bindings. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.workers", 4)
	v.SetDefault("session.query_timeout", "5s")
	v.SetDefault("session.epoch", "")
	v.SetDefault("session.omit_marker", false)
	v.SetDefault("session.clip_to_target", false)

	v.SetDefault("scene.require_layers", false)

	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.max_workers", 8)
	v.SetDefault("server.max_targets", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "sightline")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads path (if non-empty) into v and decodes the result. The config
// is not validated; call Validate or ValidateSession as appropriate.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadFile is Load with a fresh viper instance.
func LoadFile(path string) (*Config, error) {
	return Load(NewViper(), path)
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if c.Session.Workers < 0 {
		return fmt.Errorf("%w: session.workers must not be negative", ErrInvalidConfig)
	}
	if c.Session.QueryTimeout < 0 {
		return fmt.Errorf("%w: session.query_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := timectrl.Parse(c.Session.Epoch); err != nil {
		return fmt.Errorf("%w: session.epoch: %v", ErrInvalidConfig, err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be within [0,1]", ErrInvalidConfig)
	}
	if !observability.ValidExporter(c.Tracing.Exporter) {
		return fmt.Errorf("%w: tracing.exporter %q is not stdout or otlp", ErrInvalidConfig, c.Tracing.Exporter)
	}
	if err := c.Scene.Validate(); err != nil {
		return err
	}
	return nil
}

// ValidateSession additionally requires an observer and at least one target.
func (c *Config) ValidateSession() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.Observer.validate("observer"); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidConfig)
	}
	for i, t := range c.Targets {
		if err := t.validate(fmt.Sprintf("targets[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (s SiteConfig) validate(where string) error {
	n := 0
	if s.ECEF != nil {
		n++
	}
	if s.Geodetic != nil {
		n++
	}
	if s.TLE != nil {
		n++
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: %s needs one of ecef, geodetic or tle", ErrInvalidConfig, where)
	case n > 1:
		return fmt.Errorf("%w: %s sets more than one position source", ErrInvalidConfig, where)
	}
	if e := s.ECEF; e != nil && !finite(e.X, e.Y, e.Z) {
		return fmt.Errorf("%w: %s.ecef has a non-finite coordinate", ErrInvalidConfig, where)
	}
	if g := s.Geodetic; g != nil {
		if !finite(g.Lat, g.Lon, g.Height) {
			return fmt.Errorf("%w: %s.geodetic has a non-finite coordinate", ErrInvalidConfig, where)
		}
		if math.Abs(g.Lat) > 90 {
			return fmt.Errorf("%w: %s.geodetic.lat %v outside [-90,90]", ErrInvalidConfig, where, g.Lat)
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Site converts the config entry to a model.Site.
func (s SiteConfig) Site() model.Site {
	site := model.Site{ID: s.ID, Name: s.Name, NoradID: s.NoradID}
	switch {
	case s.Geodetic != nil:
		site.Source = model.PositionSourceGeodetic
		site.Geodetic = model.GeodeticCoordinates{LatDeg: s.Geodetic.Lat, LonDeg: s.Geodetic.Lon, Height: s.Geodetic.Height}
	case s.TLE != nil:
		site.Source = model.PositionSourceTLE
		site.TLE = model.TLE{Line1: s.TLE.Line1, Line2: s.TLE.Line2}
	case s.ECEF != nil:
		site.Source = model.PositionSourceECEF
		site.Coordinates = model.Coordinates{X: s.ECEF.X, Y: s.ECEF.Y, Z: s.ECEF.Z}
	}
	return site
}

// SessionObserver returns the configured observer.
func (c *Config) SessionObserver() model.Observer {
	return model.Observer{Site: c.Observer.Site()}
}

// SessionTargets returns the configured targets in order.
func (c *Config) SessionTargets() []model.Target {
	out := make([]model.Target, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = model.Target{Site: t.Site()}
	}
	return out
}

// Clock returns the session epoch source.
func (c *Config) Clock() (timectrl.Clock, error) {
	return timectrl.Parse(c.Session.Epoch)
}

// LoggingConfig converts the log section.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// ObservabilityTracing converts the tracing section.
func (c *Config) ObservabilityTracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// WriteFile marshals cfg as YAML to path, creating parent directories.
func WriteFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
