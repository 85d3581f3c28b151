// Package config loads and validates the engine configuration. All
// performer-tuned constants (thresholds, smoothing alphas, hysteresis
// margin, cooldowns) live here; out-of-domain values are rejected at session
// start, never at frame-processing time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/cuerposonoro/internal/feature"
	"github.com/ayusman/cuerposonoro/internal/music"
)

// Config is the top-level application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	OSC    OSCConfig    `yaml:"osc"`
	MIDI   MIDIConfig   `yaml:"midi"`
	Engine Engine       `yaml:"engine"`
}

// ServerConfig configures the HTTP/WebSocket boundary.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig configures the SQLite preset and session store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// OSCConfig configures the parameter-stream sink.
type OSCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MIDIConfig configures the MPE note-stream sink.
type MIDIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	// MelodyChannels is the polyphonic channel pool that limb voices
	// rotate across (0-indexed MIDI channels).
	MelodyChannels []uint8 `yaml:"melody_channels"`
}

// Engine holds the kinematic and mapping parameters.
type Engine struct {
	BufferCapacity      int     `yaml:"buffer_capacity"`
	VisibilityThreshold float64 `yaml:"visibility_threshold"`
	GapToleranceMs      int     `yaml:"gap_tolerance_ms"`
	JerkFullScale       float64 `yaml:"jerk_full_scale"`
	VelocityFullScale   float64 `yaml:"velocity_full_scale"`

	DefaultAlpha float64            `yaml:"default_alpha"`
	Alphas       map[string]float64 `yaml:"alphas"`

	HysteresisMargin float64 `yaml:"hysteresis_margin"`

	JerkOnsetThreshold  float64 `yaml:"jerk_onset_threshold"`
	RetriggerIntervalMs int     `yaml:"retrigger_interval_ms"`
	BaseNoteDurationMs  int     `yaml:"base_note_duration_ms"`
	MinNoteDurationMs   int     `yaml:"min_note_duration_ms"`
	MaxNoteDurationMs   int     `yaml:"max_note_duration_ms"`

	ModerateTiltThreshold float64 `yaml:"moderate_tilt_threshold"`
	ExtremeTiltThreshold  float64 `yaml:"extreme_tilt_threshold"`
	ChordBendFraction     float64 `yaml:"chord_bend_fraction"`
	MelodyBendFraction    float64 `yaml:"melody_bend_fraction"`
	VibratoRateThreshold  float64 `yaml:"vibrato_rate_threshold"`
}

// Default returns the configuration used when no file overrides it. The
// numbers follow the values the mapping was originally tuned with; they are
// starting points, not constants — every one is meant to be adjusted per
// performer.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: ""},
		OSC:    OSCConfig{Enabled: true, Host: "127.0.0.1", Port: 57120},
		MIDI:   MIDIConfig{Enabled: false, Port: "Cuerpo Sonoro", MelodyChannels: []uint8{4, 5, 6, 7}},
		Engine: Engine{
			BufferCapacity:      8,
			VisibilityThreshold: 0.5,
			GapToleranceMs:      350,
			JerkFullScale:       30,
			VelocityFullScale:   3,
			DefaultAlpha:        0.3,
			Alphas: map[string]float64{
				feature.HipTilt:       0.2,
				feature.HeadTilt:      0.2,
				feature.KneeAngle:     0.2,
				feature.RightHandJerk: 0.7,
				feature.LeftHandJerk:  0.7,
			},
			HysteresisMargin:      0.02,
			JerkOnsetThreshold:    0.4,
			RetriggerIntervalMs:   150,
			BaseNoteDurationMs:    300,
			MinNoteDurationMs:     150,
			MaxNoteDurationMs:     600,
			ModerateTiltThreshold: 0.3,
			ExtremeTiltThreshold:  0.8,
			ChordBendFraction:     0.5,
			MelodyBendFraction:    0.25,
			VibratoRateThreshold:  0.02,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseOverlay validates a YAML document as an overlay on the defaults
// without applying it anywhere. Used to vet presets before they are stored.
func ParseOverlay(data []byte) error {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate rejects out-of-domain parameter values. It is called once at
// session start so a bad value can never surface mid-performance.
func (c Config) Validate() error {
	e := c.Engine

	if e.BufferCapacity < 3 {
		return fmt.Errorf("engine.buffer_capacity must be >= 3, got %d", e.BufferCapacity)
	}
	if e.VisibilityThreshold < 0 || e.VisibilityThreshold > 1 {
		return fmt.Errorf("engine.visibility_threshold must be in [0,1], got %g", e.VisibilityThreshold)
	}
	if e.GapToleranceMs <= 0 {
		return fmt.Errorf("engine.gap_tolerance_ms must be positive, got %d", e.GapToleranceMs)
	}
	if e.JerkFullScale <= 0 {
		return fmt.Errorf("engine.jerk_full_scale must be positive, got %g", e.JerkFullScale)
	}
	if e.VelocityFullScale <= 0 {
		return fmt.Errorf("engine.velocity_full_scale must be positive, got %g", e.VelocityFullScale)
	}

	if e.DefaultAlpha <= 0 || e.DefaultAlpha > 1 {
		return fmt.Errorf("engine.default_alpha must be in (0,1], got %g", e.DefaultAlpha)
	}
	for name, alpha := range e.Alphas {
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("engine.alphas[%s] must be in (0,1], got %g", name, alpha)
		}
	}

	if e.HysteresisMargin < 0 || e.HysteresisMargin >= 1.0/music.ZoneCount {
		return fmt.Errorf("engine.hysteresis_margin must be in [0, %g), got %g", 1.0/music.ZoneCount, e.HysteresisMargin)
	}

	if e.JerkOnsetThreshold <= 0 || e.JerkOnsetThreshold > 1 {
		return fmt.Errorf("engine.jerk_onset_threshold must be in (0,1], got %g", e.JerkOnsetThreshold)
	}
	if e.RetriggerIntervalMs < 0 {
		return fmt.Errorf("engine.retrigger_interval_ms must not be negative, got %d", e.RetriggerIntervalMs)
	}
	if e.MinNoteDurationMs <= 0 || e.BaseNoteDurationMs < e.MinNoteDurationMs || e.MaxNoteDurationMs < e.BaseNoteDurationMs {
		return fmt.Errorf("engine note durations must satisfy 0 < min <= base <= max, got min=%d base=%d max=%d",
			e.MinNoteDurationMs, e.BaseNoteDurationMs, e.MaxNoteDurationMs)
	}

	if e.ModerateTiltThreshold < 0 || e.ModerateTiltThreshold > 1 {
		return fmt.Errorf("engine.moderate_tilt_threshold must be in [0,1], got %g", e.ModerateTiltThreshold)
	}
	if e.ExtremeTiltThreshold < e.ModerateTiltThreshold || e.ExtremeTiltThreshold > 1 {
		return fmt.Errorf("engine.extreme_tilt_threshold must be in [moderate,1], got %g", e.ExtremeTiltThreshold)
	}
	if e.ChordBendFraction < 0 || e.ChordBendFraction > 1 {
		return fmt.Errorf("engine.chord_bend_fraction must be in [0,1], got %g", e.ChordBendFraction)
	}
	if e.MelodyBendFraction < 0 || e.MelodyBendFraction > 1 {
		return fmt.Errorf("engine.melody_bend_fraction must be in [0,1], got %g", e.MelodyBendFraction)
	}
	if e.VibratoRateThreshold <= 0 {
		return fmt.Errorf("engine.vibrato_rate_threshold must be positive, got %g", e.VibratoRateThreshold)
	}

	if c.OSC.Enabled && (c.OSC.Port <= 0 || c.OSC.Port > 65535) {
		return fmt.Errorf("osc.port must be in (0,65535], got %d", c.OSC.Port)
	}
	if c.MIDI.Enabled && len(c.MIDI.MelodyChannels) == 0 {
		return fmt.Errorf("midi.melody_channels must not be empty when MIDI is enabled")
	}
	for _, ch := range c.MIDI.MelodyChannels {
		if ch > 15 {
			return fmt.Errorf("midi.melody_channels entries must be in [0,15], got %d", ch)
		}
	}

	return nil
}

// ExtractorOptions converts the engine parameters into feature extractor
// options.
func (e Engine) ExtractorOptions() feature.Options {
	return feature.Options{
		BufferCapacity:      e.BufferCapacity,
		VisibilityThreshold: e.VisibilityThreshold,
		GapTolerance:        time.Duration(e.GapToleranceMs) * time.Millisecond,
		JerkFullScale:       e.JerkFullScale,
		VelocityFullScale:   e.VelocityFullScale,
		DefaultAlpha:        e.DefaultAlpha,
		Alphas:              e.Alphas,
	}
}

// TriggerOptions builds the trigger options for one limb voice.
func (e Engine) TriggerOptions(voice music.Voice, basePitch int) music.TriggerOptions {
	return music.TriggerOptions{
		Voice:             voice,
		BasePitch:         basePitch,
		OnsetThreshold:    e.JerkOnsetThreshold,
		RetriggerInterval: time.Duration(e.RetriggerIntervalMs) * time.Millisecond,
		BaseDuration:      time.Duration(e.BaseNoteDurationMs) * time.Millisecond,
		MinDuration:       time.Duration(e.MinNoteDurationMs) * time.Millisecond,
		MaxDuration:       time.Duration(e.MaxNoteDurationMs) * time.Millisecond,
	}
}

// MapperOptions converts the engine parameters into mapper options.
func (e Engine) MapperOptions() music.MapperOptions {
	return music.MapperOptions{
		ModerateTiltThreshold: e.ModerateTiltThreshold,
		ExtremeTiltThreshold:  e.ExtremeTiltThreshold,
		ChordBendFraction:     e.ChordBendFraction,
		MelodyBendFraction:    e.MelodyBendFraction,
		VibratoRateThreshold:  e.VibratoRateThreshold,
	}
}
