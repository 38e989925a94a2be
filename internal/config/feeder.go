package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/pet-feeder/internal/inference"
	"github.com/banshee-data/pet-feeder/internal/serialmux"
	"github.com/banshee-data/pet-feeder/internal/session"
	"github.com/banshee-data/pet-feeder/internal/species"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/feeder.defaults.json"

// Defaults for fields omitted from the config file.
const (
	DefaultSerialPort    = "/dev/ttyACM0"
	DefaultModelPath     = "/usr/share/imx500-models/imx500_network_mobilenet_v2.rpk"
	DefaultLabelsPath    = "/usr/share/pet-feeder/imagenet_labels.txt"
	DefaultListen        = "localhost:8081"
	DefaultAIInitAttempt = 3
)

// DefaultWorkerCommand launches the bundled camera helper.
var DefaultWorkerCommand = []string{"python3", "/usr/share/pet-feeder/imx500_worker.py"}

// FeederConfig is the root configuration. Every field is optional; the Get*
// methods supply the default for anything the file leaves out.
type FeederConfig struct {
	// Session
	SessionDuration     *string  `json:"session_duration,omitempty"` // duration string like "15s"
	SampleInterval      *string  `json:"sample_interval,omitempty"`
	MinDetections       *int     `json:"min_detections,omitempty"`
	TopN                *int     `json:"top_n,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	InferenceTimeout    *string  `json:"inference_timeout,omitempty"` // "0s" disables the timeout
	Softmax             *bool    `json:"softmax,omitempty"`

	// Keywords maps a species name to its label keywords and replaces the
	// built-in CAT/DOG sets when present.
	Keywords map[string][]string `json:"keywords,omitempty"`

	// Inference helper
	ModelPath      *string  `json:"model_path,omitempty"`
	LabelsPath     *string  `json:"labels_path,omitempty"`
	WorkerCommand  []string `json:"worker_command,omitempty"`
	AIInitAttempts *int     `json:"ai_init_attempts,omitempty"`
	AIInitDelay    *string  `json:"ai_init_delay,omitempty"`

	// Serial
	SerialPort        *string `json:"serial_port,omitempty"`
	BaudRate          *int    `json:"baud_rate,omitempty"`
	SerialRetryDelay  *string `json:"serial_retry_delay,omitempty"`
	SerialSettleDelay *string `json:"serial_settle_delay,omitempty"`

	// Process
	StartupDelay *string `json:"startup_delay,omitempty"`
	Listen       *string `json:"listen,omitempty"`
}

// Load reads a FeederConfig from a JSON file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*FeederConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FeederConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *FeederConfig) Validate() error {
	durations := []struct {
		name  string
		value *string
		zero  bool
	}{
		{"session_duration", c.SessionDuration, false},
		{"sample_interval", c.SampleInterval, false},
		{"inference_timeout", c.InferenceTimeout, true},
		{"ai_init_delay", c.AIInitDelay, true},
		{"serial_retry_delay", c.SerialRetryDelay, false},
		{"serial_settle_delay", c.SerialSettleDelay, true},
		{"startup_delay", c.StartupDelay, true},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v < 0 || (v == 0 && !d.zero) {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.MinDetections != nil && *c.MinDetections < 1 {
		return fmt.Errorf("min_detections must be at least 1, got %d", *c.MinDetections)
	}
	if c.TopN != nil && *c.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1, got %d", *c.TopN)
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
	}
	if c.AIInitAttempts != nil && *c.AIInitAttempts < 1 {
		return fmt.Errorf("ai_init_attempts must be at least 1, got %d", *c.AIInitAttempts)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.Keywords != nil && len(species.NewKeywordSets(c.Keywords)) == 0 {
		return fmt.Errorf("keywords must name at least one species with keywords")
	}
	for name := range c.Keywords {
		if strings.Contains(name, ":") {
			return fmt.Errorf("species name %q must not contain ':'", name)
		}
	}
	return nil
}

// duration parses an already validated duration, falling back to def.
func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetSessionDuration returns the session time budget.
func (c *FeederConfig) GetSessionDuration() time.Duration {
	return duration(c.SessionDuration, 15*time.Second)
}

// GetSampleInterval returns the target time between frames.
func (c *FeederConfig) GetSampleInterval() time.Duration {
	return duration(c.SampleInterval, time.Second)
}

// GetMinDetections returns the min_detections value or the default.
func (c *FeederConfig) GetMinDetections() int {
	if c.MinDetections == nil {
		return 3
	}
	return *c.MinDetections
}

// GetTopN returns the top_n value or the default.
func (c *FeederConfig) GetTopN() int {
	if c.TopN == nil {
		return 5
	}
	return *c.TopN
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *FeederConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.01
	}
	return *c.ConfidenceThreshold
}

// GetInferenceTimeout returns the per-frame classification bound; zero means
// unbounded.
func (c *FeederConfig) GetInferenceTimeout() time.Duration {
	return duration(c.InferenceTimeout, 5*time.Second)
}

// GetSoftmax returns the softmax value or the default.
func (c *FeederConfig) GetSoftmax() bool {
	if c.Softmax == nil {
		return true
	}
	return *c.Softmax
}

// GetKeywordSets returns the configured keyword sets or the built-in ones.
func (c *FeederConfig) GetKeywordSets() species.KeywordSets {
	if len(c.Keywords) == 0 {
		return species.DefaultKeywordSets()
	}
	return species.NewKeywordSets(c.Keywords)
}

// GetModelPath returns the model_path value or the default.
func (c *FeederConfig) GetModelPath() string {
	if c.ModelPath == nil || *c.ModelPath == "" {
		return DefaultModelPath
	}
	return *c.ModelPath
}

// GetLabelsPath returns the labels_path value or the default.
func (c *FeederConfig) GetLabelsPath() string {
	if c.LabelsPath == nil || *c.LabelsPath == "" {
		return DefaultLabelsPath
	}
	return *c.LabelsPath
}

// GetWorkerCommand returns the helper argv.
func (c *FeederConfig) GetWorkerCommand() []string {
	if len(c.WorkerCommand) == 0 {
		return append([]string(nil), DefaultWorkerCommand...)
	}
	return append([]string(nil), c.WorkerCommand...)
}

// GetAIInitAttempts returns the ai_init_attempts value or the default.
func (c *FeederConfig) GetAIInitAttempts() int {
	if c.AIInitAttempts == nil {
		return DefaultAIInitAttempt
	}
	return *c.AIInitAttempts
}

// GetAIInitDelay returns the wait between failed AI initialisation attempts.
func (c *FeederConfig) GetAIInitDelay() time.Duration {
	return duration(c.AIInitDelay, 15*time.Second)
}

// GetSerialPort returns the serial_port value or the default.
func (c *FeederConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *FeederConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return serialmux.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetSerialRetryDelay returns the wait between serial reconnect attempts.
func (c *FeederConfig) GetSerialRetryDelay() time.Duration {
	return duration(c.SerialRetryDelay, serialmux.DefaultRetryDelay)
}

// GetSerialSettleDelay returns the wait after opening the port.
func (c *FeederConfig) GetSerialSettleDelay() time.Duration {
	return duration(c.SerialSettleDelay, serialmux.DefaultSettleDelay)
}

// GetStartupDelay returns the wait before initialisation begins.
func (c *FeederConfig) GetStartupDelay() time.Duration {
	return duration(c.StartupDelay, 45*time.Second)
}

// GetListen returns the status server address.
func (c *FeederConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// SessionConfig builds the aggregator configuration.
func (c *FeederConfig) SessionConfig() session.Config {
	return session.Config{
		Duration:         c.GetSessionDuration(),
		Interval:         c.GetSampleInterval(),
		MinDetections:    c.GetMinDetections(),
		InferenceTimeout: c.GetInferenceTimeout(),
		Keywords:         c.GetKeywordSets(),
	}
}

// RankOptions builds the classification ranking options.
func (c *FeederConfig) RankOptions() inference.RankOptions {
	return inference.RankOptions{
		TopN:      c.GetTopN(),
		Threshold: c.GetConfidenceThreshold(),
		Softmax:   c.GetSoftmax(),
	}
}

// PortOptions builds the serial options.
func (c *FeederConfig) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{BaudRate: c.GetBaudRate()}
}
