// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "cwdecoder"
	ConfigType    = "yaml"
	DefaultConfig = `# CW Decoder Configuration

# Audio device settings
audio_device: "hw:1,0"  # ALSA device (use 'arecord -l' to find)
device_index: -1        # -1 for default device
sample_rate: 48000      # Audio sample rate in Hz
channels: 1             # Number of channels (1=mono)
format: "S16_LE"        # Audio format (S16_LE = 16-bit signed little-endian)
buffer_size: 1024       # Audio buffer size

# Tone detection
tone_frequency: 600     # CW tone frequency in Hz
block_size: 512         # Goertzel block size (samples per detection window)
overlap_pct: 50         # Block overlap percentage (0-99), higher = smoother but more CPU

# Detection thresholds
threshold: 0.4          # Detection threshold (0.0-1.0), tone magnitude must exceed this
hysteresis: 5           # Consecutive blocks required to confirm state change (reduces noise)
agc_enabled: true       # Enable automatic gain control (normalizes input levels)
agc_decay: 0.9995       # AGC peak decay factor, applied once per processed block (0.999-0.99999)
                        # Lower = faster decay, Higher = slower; time constant ~1/(1-agc_decay) blocks
                        # At 48kHz, block_size 512, overlap_pct 50 (~5.3ms per block): 0.9995 gives ~11s
agc_attack: 0.1         # AGC attack rate (0.0-1.0), how fast to respond to louder signals
                        # Higher = faster response, Lower = more gradual
agc_warmup_blocks: 10   # Blocks processed before detection is enabled, lets AGC settle

# Receive timing (C1-C3)
wpm: 15                     # Initial WPM estimate
adaptive_timing: true       # Adapt to sender's speed rather than track a fixed wpm
adaptive_smoothing: 0.1     # Range-checked (0.0-1.0) only; the receiver's adaptive tracking does not read it
tolerance_pct: 50           # Fixed-mode dot/dash tolerance, percent either side of ideal
gap_units: 2                # Additional inter-character gap, in dot-units
noise_spike_threshold_us: 0 # Marks shorter than this are treated as noise, not a dot (0 disables)
dit_dah_boundary: 2.0       # Range-checked only; adaptive mode always splits dot/dash at 2x the tracked dot
inter_char_boundary: 2.0    # Range-checked only; not read by the receiver
char_word_boundary: 5.0     # Range-checked only; adaptive mode always splits char/word space at 5x the tracked dot
farnsworth_wpm: 0           # Range-checked (0, or 5 to wpm) only; no component applies Farnsworth spacing

# Adaptive pattern correction (C8)
adaptive_pattern_enabled: true  # Suggest corrections for garbled words against common CW patterns
adaptive_min_confidence: 0.7    # Minimum similarity (0.0-1.0) before a suggestion is offered
adaptive_adjustment_rate: 0.1   # Range-checked (0.0-1.0) only; the corrector does not read it
adaptive_min_matches: 3         # Range-checked (at least 1) only; the corrector does not read it

# Send generator (C6-C7)
generator_frequency_hz: 600       # Sidetone frequency in Hz
generator_volume_pct: 70          # Output volume, percent of full scale
generator_sink: "malgo"           # malgo (real audio device), console (beeper), or null (silent)
generator_weighting_pct: 50       # Dot/dash weighting, percent (50 = unweighted)
slope_length_us: 5000             # Rise/fall time applied to each tone, in microseconds
slope_shape: "raised_cosine"      # linear, raised_cosine, sine, or rectangular
tone_queue_capacity: 256          # Maximum tones buffered ahead of playback

# Structured logging
log_level: "info"        # debug, info, warn, or error
log_file: ""              # path to a log file; empty logs to stderr only
log_max_size_mb: 100       # lumberjack: rotate after this many megabytes
log_max_backups: 3         # lumberjack: number of rotated files to retain
log_max_age_days: 28       # lumberjack: days to retain rotated files
log_compress: true         # lumberjack: gzip rotated files

# Prometheus metrics and websocket monitor (serve subcommand)
metrics_enabled: false
metrics_addr: ":9090"
monitor_enabled: false
monitor_addr: ":8765"

# Output
debug: false            # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	AudioDevice string  `mapstructure:"audio_device"`
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	Format      string  `mapstructure:"format"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Tone detection
	ToneFrequency float64 `mapstructure:"tone_frequency"`
	BlockSize     int     `mapstructure:"block_size"`
	OverlapPct    int     `mapstructure:"overlap_pct"`

	// Detection thresholds
	Threshold       float64 `mapstructure:"threshold"`
	Hysteresis      int     `mapstructure:"hysteresis"`
	AGCEnabled      bool    `mapstructure:"agc_enabled"`
	AGCDecay        float64 `mapstructure:"agc_decay"`
	AGCAttack       float64 `mapstructure:"agc_attack"`
	AGCWarmupBlocks int     `mapstructure:"agc_warmup_blocks"`

	// Receive timing
	WPM                   int     `mapstructure:"wpm"`
	AdaptiveTiming        bool    `mapstructure:"adaptive_timing"`
	AdaptiveSmoothing     float64 `mapstructure:"adaptive_smoothing"`
	TolerancePct          int     `mapstructure:"tolerance_pct"`
	GapUnits              int     `mapstructure:"gap_units"`
	NoiseSpikeThresholdUs int64   `mapstructure:"noise_spike_threshold_us"`
	DitDahBoundary        float64 `mapstructure:"dit_dah_boundary"`
	InterCharBoundary     float64 `mapstructure:"inter_char_boundary"`
	CharWordBoundary      float64 `mapstructure:"char_word_boundary"`
	FarnsworthWPM         int     `mapstructure:"farnsworth_wpm"`

	// Adaptive pattern correction
	AdaptivePatternEnabled bool    `mapstructure:"adaptive_pattern_enabled"`
	AdaptiveMinConfidence  float64 `mapstructure:"adaptive_min_confidence"`
	AdaptiveAdjustmentRate float64 `mapstructure:"adaptive_adjustment_rate"`
	AdaptiveMinMatches     int     `mapstructure:"adaptive_min_matches"`

	// Send generator
	GeneratorFrequencyHz  float64 `mapstructure:"generator_frequency_hz"`
	GeneratorVolumePct    int     `mapstructure:"generator_volume_pct"`
	GeneratorSink         string  `mapstructure:"generator_sink"`
	GeneratorWeightingPct int     `mapstructure:"generator_weighting_pct"`
	SlopeLengthUs         int64   `mapstructure:"slope_length_us"`
	SlopeShape            string  `mapstructure:"slope_shape"`
	ToneQueueCapacity     int     `mapstructure:"tone_queue_capacity"`

	// Structured logging
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`

	// Metrics and monitor (serve subcommand)
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	MonitorEnabled bool   `mapstructure:"monitor_enabled"`
	MonitorAddr    string `mapstructure:"monitor_addr"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/cwdecoder/
func Init() error {
	// Set defaults
	viper.SetDefault("audio_device", "hw:1,0")
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("format", "S16_LE")
	viper.SetDefault("buffer_size", 1024)
	viper.SetDefault("tone_frequency", 600)
	viper.SetDefault("block_size", 512)
	viper.SetDefault("overlap_pct", 50)
	viper.SetDefault("threshold", 0.4)
	viper.SetDefault("hysteresis", 5)
	viper.SetDefault("agc_enabled", true)
	viper.SetDefault("agc_decay", 0.9995)
	viper.SetDefault("agc_attack", 0.1)
	viper.SetDefault("agc_warmup_blocks", 10)
	viper.SetDefault("wpm", 15)
	viper.SetDefault("adaptive_timing", true)
	viper.SetDefault("adaptive_smoothing", 0.1)
	viper.SetDefault("tolerance_pct", 50)
	viper.SetDefault("gap_units", 2)
	viper.SetDefault("noise_spike_threshold_us", 0)
	viper.SetDefault("dit_dah_boundary", 2.0)
	viper.SetDefault("inter_char_boundary", 2.0)
	viper.SetDefault("char_word_boundary", 5.0)
	viper.SetDefault("farnsworth_wpm", 0)
	viper.SetDefault("adaptive_pattern_enabled", true)
	viper.SetDefault("adaptive_min_confidence", 0.7)
	viper.SetDefault("adaptive_adjustment_rate", 0.1)
	viper.SetDefault("adaptive_min_matches", 3)
	viper.SetDefault("generator_frequency_hz", 600)
	viper.SetDefault("generator_volume_pct", 70)
	viper.SetDefault("generator_sink", "malgo")
	viper.SetDefault("generator_weighting_pct", 50)
	viper.SetDefault("slope_length_us", 5000)
	viper.SetDefault("slope_shape", "raised_cosine")
	viper.SetDefault("tone_queue_capacity", 256)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")
	viper.SetDefault("log_max_size_mb", 100)
	viper.SetDefault("log_max_backups", 3)
	viper.SetDefault("log_max_age_days", 28)
	viper.SetDefault("log_compress", true)
	viper.SetDefault("metrics_enabled", false)
	viper.SetDefault("metrics_addr", ":9090")
	viper.SetDefault("monitor_enabled", false)
	viper.SetDefault("monitor_addr", ":8765")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/cwdecoder/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	// Buffer size should be power of 2 for optimal FFT/Goertzel performance
	if s.BufferSize&(s.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size should be a power of 2, got %d", s.BufferSize))
	}

	// Tone detection
	if s.ToneFrequency < 100 || s.ToneFrequency > 3000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 100 and 3000 Hz, got %v", s.ToneFrequency))
	}
	if s.BlockSize < 32 || s.BlockSize > 4096 {
		errs = append(errs, fmt.Errorf("block_size must be between 32 and 4096, got %d", s.BlockSize))
	}
	if s.BlockSize&(s.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("block_size should be a power of 2, got %d", s.BlockSize))
	}
	if s.OverlapPct < 0 || s.OverlapPct > 99 {
		errs = append(errs, fmt.Errorf("overlap_pct must be between 0 and 99, got %d", s.OverlapPct))
	}

	// Detection thresholds
	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", s.Threshold))
	}
	if s.Hysteresis < 1 || s.Hysteresis > 50 {
		errs = append(errs, fmt.Errorf("hysteresis must be between 1 and 50, got %d", s.Hysteresis))
	}
	if s.AGCDecay < 0.99 || s.AGCDecay > 0.99999 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.99 and 0.99999, got %v", s.AGCDecay))
	}
	if s.AGCAttack < 0.0 || s.AGCAttack > 1.0 {
		errs = append(errs, fmt.Errorf("agc_attack must be between 0.0 and 1.0, got %v", s.AGCAttack))
	}
	if s.AGCWarmupBlocks < 0 {
		errs = append(errs, fmt.Errorf("agc_warmup_blocks must not be negative, got %d", s.AGCWarmupBlocks))
	}

	// Timing
	if s.WPM < 5 || s.WPM > 60 {
		errs = append(errs, fmt.Errorf("wpm must be between 5 and 60, got %d", s.WPM))
	}
	if s.AdaptiveSmoothing < 0.0 || s.AdaptiveSmoothing > 1.0 {
		errs = append(errs, fmt.Errorf("adaptive_smoothing must be between 0.0 and 1.0, got %v", s.AdaptiveSmoothing))
	}
	if s.TolerancePct < 0 || s.TolerancePct > 90 {
		errs = append(errs, fmt.Errorf("tolerance_pct must be between 0 and 90, got %d", s.TolerancePct))
	}
	if s.GapUnits < 0 || s.GapUnits > 60 {
		errs = append(errs, fmt.Errorf("gap_units must be between 0 and 60, got %d", s.GapUnits))
	}
	if s.NoiseSpikeThresholdUs < 0 {
		errs = append(errs, fmt.Errorf("noise_spike_threshold_us must not be negative, got %d", s.NoiseSpikeThresholdUs))
	}
	if s.DitDahBoundary < 1.5 || s.DitDahBoundary > 3.5 {
		errs = append(errs, fmt.Errorf("dit_dah_boundary must be between 1.5 and 3.5, got %v", s.DitDahBoundary))
	}
	if s.InterCharBoundary < 1.5 || s.InterCharBoundary > 4.0 {
		errs = append(errs, fmt.Errorf("inter_char_boundary must be between 1.5 and 4.0, got %v", s.InterCharBoundary))
	}
	if s.CharWordBoundary < 3.0 || s.CharWordBoundary > 10.0 {
		errs = append(errs, fmt.Errorf("char_word_boundary must be between 3.0 and 10.0, got %v", s.CharWordBoundary))
	}
	if s.FarnsworthWPM != 0 && (s.FarnsworthWPM < 5 || s.FarnsworthWPM > s.WPM) {
		errs = append(errs, fmt.Errorf("farnsworth_wpm must be 0 (disabled) or between 5 and wpm (%d), got %d", s.WPM, s.FarnsworthWPM))
	}

	// Adaptive pattern correction
	if s.AdaptiveMinConfidence < 0.0 || s.AdaptiveMinConfidence > 1.0 {
		errs = append(errs, fmt.Errorf("adaptive_min_confidence must be between 0.0 and 1.0, got %v", s.AdaptiveMinConfidence))
	}
	if s.AdaptiveAdjustmentRate < 0.0 || s.AdaptiveAdjustmentRate > 1.0 {
		errs = append(errs, fmt.Errorf("adaptive_adjustment_rate must be between 0.0 and 1.0, got %v", s.AdaptiveAdjustmentRate))
	}
	if s.AdaptiveMinMatches < 1 {
		errs = append(errs, fmt.Errorf("adaptive_min_matches must be at least 1, got %d", s.AdaptiveMinMatches))
	}

	// Send generator
	if s.GeneratorFrequencyHz != 0 && (s.GeneratorFrequencyHz < 100 || s.GeneratorFrequencyHz > 3000) {
		errs = append(errs, fmt.Errorf("generator_frequency_hz must be between 100 and 3000 Hz, got %v", s.GeneratorFrequencyHz))
	}
	if s.GeneratorVolumePct != 0 && (s.GeneratorVolumePct < 0 || s.GeneratorVolumePct > 100) {
		errs = append(errs, fmt.Errorf("generator_volume_pct must be between 0 and 100, got %d", s.GeneratorVolumePct))
	}
	validSinks := map[string]bool{"malgo": true, "console": true, "null": true, "": true}
	if !validSinks[s.GeneratorSink] {
		errs = append(errs, fmt.Errorf("generator_sink must be one of malgo, console, null, got %q", s.GeneratorSink))
	}
	if s.GeneratorWeightingPct != 0 && (s.GeneratorWeightingPct < 20 || s.GeneratorWeightingPct > 80) {
		errs = append(errs, fmt.Errorf("generator_weighting_pct must be between 20 and 80, got %d", s.GeneratorWeightingPct))
	}
	if s.SlopeLengthUs < 0 {
		errs = append(errs, fmt.Errorf("slope_length_us must not be negative, got %d", s.SlopeLengthUs))
	}
	validSlopes := map[string]bool{"linear": true, "raised_cosine": true, "sine": true, "rectangular": true, "": true}
	if !validSlopes[s.SlopeShape] {
		errs = append(errs, fmt.Errorf("slope_shape must be one of linear, raised_cosine, sine, rectangular, got %q", s.SlopeShape))
	}
	if s.ToneQueueCapacity != 0 && s.ToneQueueCapacity < 8 {
		errs = append(errs, fmt.Errorf("tone_queue_capacity must be at least 8, got %d", s.ToneQueueCapacity))
	}

	// Structured logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[s.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel))
	}
	if s.LogMaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("log_max_size_mb must not be negative, got %d", s.LogMaxSizeMB))
	}

	// Validate audio format
	validFormats := map[string]bool{
		"S16_LE": true,
		"S16_BE": true,
		"S24_LE": true,
		"S24_BE": true,
		"S32_LE": true,
		"S32_BE": true,
		"F32_LE": true,
		"F32_BE": true,
	}
	if !validFormats[s.Format] {
		errs = append(errs, fmt.Errorf("format must be one of S16_LE, S16_BE, S24_LE, S24_BE, S32_LE, S32_BE, F32_LE, F32_BE, got %q", s.Format))
	}

	// Nyquist check: tone frequency must be less than half the sample rate
	if s.ToneFrequency >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("tone_frequency (%v Hz) must be less than Nyquist frequency (%v Hz)", s.ToneFrequency, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
