package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical settings defaults file.
// This is the single source of truth for all default values.
const DefaultConfigPath = "config/vigil.defaults.json"

// Settings is the root daemon configuration. Every field is optional:
// omitted fields fall back to the defaults baked into the Get* accessors,
// so a partial config file is always safe.
type Settings struct {
	// Polling cadence
	PollInterval    *string `json:"poll_interval,omitempty"`    // duration string like "2s"
	RefreshInterval *string `json:"refresh_interval,omitempty"` // duration string like "60s"

	// Bus selection
	Bus *BusSettings `json:"bus,omitempty"`

	// EnabledModels restricts detection; empty means all supported models.
	EnabledModels []string `json:"enabled_models,omitempty"`

	// Alerting
	Rules           []RuleSettings      `json:"rules,omitempty"`
	Inactivity      *InactivitySettings `json:"inactivity,omitempty"`
	MedicationTimes []string            `json:"medication_times,omitempty"` // "HH:MM"
	Anomaly         *AnomalySettings    `json:"anomaly,omitempty"`

	// Notification
	EmergencyContacts []Contact     `json:"emergency_contacts,omitempty"`
	SMS               *SMSSettings  `json:"sms,omitempty"`
	MQTT              *MQTTSettings `json:"mqtt,omitempty"`

	// Surfaces and storage
	HTTP          *HTTPSettings `json:"http,omitempty"`
	DBPath        *string       `json:"db_path,omitempty"`
	RetentionDays *int          `json:"retention_days,omitempty"`
}

// BusSettings selects and tunes the I2C bus.
type BusSettings struct {
	Name    *string `json:"name,omitempty"`    // "1" on a Pi, or a periph.io bus name
	Timeout *string `json:"timeout,omitempty"` // per-transaction, "100ms".."500ms"
}

// RuleSettings is one threshold rule evaluated against readings.
type RuleSettings struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Op        string  `json:"op"` // > < >= <= == !=
	Threshold float64 `json:"threshold"`

	Severity *string `json:"severity,omitempty"` // info, warning, critical
	Debounce *string `json:"debounce,omitempty"`
	Cooldown *string `json:"cooldown,omitempty"`
	Message  *string `json:"message,omitempty"`
}

// InactivitySettings tunes the no-motion watchdog.
type InactivitySettings struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	Threshold     *string `json:"threshold,omitempty"`
	CheckInterval *string `json:"check_interval,omitempty"`
}

// AnomalySettings tunes the rolling-baseline deviation rule.
type AnomalySettings struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Metrics    []string `json:"metrics,omitempty"`
	Sigma      *float64 `json:"sigma,omitempty"`
	Window     *int     `json:"window,omitempty"`
	MinSamples *int     `json:"min_samples,omitempty"`
}

// Contact is one emergency contact for SMS notification.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SMSSettings configures the AT-command modem used for critical alerts.
type SMSSettings struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Port    *string `json:"port,omitempty"`
	Baud    *int    `json:"baud,omitempty"`
}

// MQTTSettings configures the telemetry feed.
type MQTTSettings struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	Broker         *string `json:"broker,omitempty"`
	TopicPrefix    *string `json:"topic_prefix,omitempty"`
	Embedded       *bool   `json:"embedded,omitempty"`
	EmbeddedListen *string `json:"embedded_listen,omitempty"`
}

// HTTPSettings configures the API/dashboard listener.
type HTTPSettings struct {
	Listen *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySettings returns a Settings with all fields set to nil.
func EmptySettings() *Settings {
	return &Settings{}
}

// LoadSettings loads Settings from a JSON file. The file must have a .json
// extension and stay under the max file size. Fields omitted from the JSON
// retain their defaults, so partial configs are safe.
func LoadSettings(path string) (*Settings, error) {
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

	cfg := EmptySettings()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultSettings loads the canonical defaults from DefaultConfigPath,
// searching upward from the current directory. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultSettings() *Settings {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSettings(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var validOps = map[string]bool{
	">": true, "<": true, ">=": true, "<=": true, "==": true, "!=": true,
}

var validSeverities = map[string]bool{
	"info": true, "warning": true, "critical": true,
}

func validateDuration(name string, v *string, min, max time.Duration) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < min {
		return fmt.Errorf("%s must be at least %s, got %s", name, min, d)
	}
	if max > 0 && d > max {
		return fmt.Errorf("%s must be at most %s, got %s", name, max, d)
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (s *Settings) Validate() error {
	if err := validateDuration("poll_interval", s.PollInterval, 100*time.Millisecond, 0); err != nil {
		return err
	}
	if err := validateDuration("refresh_interval", s.RefreshInterval, time.Second, 0); err != nil {
		return err
	}
	if s.Bus != nil {
		// the range keeps a stuck device from stalling a poll cycle while
		// still letting slow conversions finish
		if err := validateDuration("bus.timeout", s.Bus.Timeout, 100*time.Millisecond, 500*time.Millisecond); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(s.Rules))
	for i, r := range s.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		if r.Metric == "" {
			return fmt.Errorf("rule %q has no metric", r.Name)
		}
		if !validOps[r.Op] {
			return fmt.Errorf("rule %q has unknown op %q", r.Name, r.Op)
		}
		if r.Severity != nil && !validSeverities[*r.Severity] {
			return fmt.Errorf("rule %q has unknown severity %q", r.Name, *r.Severity)
		}
		if err := validateDuration("rule "+r.Name+" debounce", r.Debounce, 0, 0); err != nil {
			return err
		}
		if err := validateDuration("rule "+r.Name+" cooldown", r.Cooldown, 0, 0); err != nil {
			return err
		}
	}

	if s.Inactivity != nil {
		if err := validateDuration("inactivity.threshold", s.Inactivity.Threshold, time.Minute, 0); err != nil {
			return err
		}
		if err := validateDuration("inactivity.check_interval", s.Inactivity.CheckInterval, time.Second, 0); err != nil {
			return err
		}
	}

	for _, t := range s.MedicationTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid medication time %q, want HH:MM", t)
		}
	}

	if s.Anomaly != nil {
		if s.Anomaly.Sigma != nil && *s.Anomaly.Sigma <= 0 {
			return fmt.Errorf("anomaly.sigma must be positive, got %f", *s.Anomaly.Sigma)
		}
		if s.Anomaly.Window != nil && *s.Anomaly.Window < 2 {
			return fmt.Errorf("anomaly.window must be at least 2, got %d", *s.Anomaly.Window)
		}
		if s.Anomaly.MinSamples != nil && *s.Anomaly.MinSamples < 2 {
			return fmt.Errorf("anomaly.min_samples must be at least 2, got %d", *s.Anomaly.MinSamples)
		}
	}

	if s.RetentionDays != nil && *s.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative, got %d", *s.RetentionDays)
	}

	for _, c := range s.EmergencyContacts {
		if c.Phone == "" {
			return fmt.Errorf("emergency contact %q has no phone number", c.Name)
		}
	}

	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPollInterval returns the poll cadence.
func (s *Settings) GetPollInterval() time.Duration {
	return parseDurationOr(s.PollInterval, 2*time.Second)
}

// GetRefreshInterval returns the re-scan cadence.
func (s *Settings) GetRefreshInterval() time.Duration {
	return parseDurationOr(s.RefreshInterval, 60*time.Second)
}

// GetBusName returns the I2C bus to open.
func (s *Settings) GetBusName() string {
	if s.Bus == nil || s.Bus.Name == nil || *s.Bus.Name == "" {
		return "1" // the Pi's user-facing bus
	}
	return *s.Bus.Name
}

// GetBusTimeout returns the per-transaction I/O timeout.
func (s *Settings) GetBusTimeout() time.Duration {
	if s.Bus == nil {
		return 250 * time.Millisecond
	}
	return parseDurationOr(s.Bus.Timeout, 250*time.Millisecond)
}

// GetRules returns the configured rules, or the built-in set when the
// config names none.
func (s *Settings) GetRules() []RuleSettings {
	if len(s.Rules) == 0 {
		return DefaultRules()
	}
	return s.Rules
}

// GetInactivityEnabled reports whether the no-motion watchdog runs.
func (s *Settings) GetInactivityEnabled() bool {
	if s.Inactivity == nil || s.Inactivity.Enabled == nil {
		return true
	}
	return *s.Inactivity.Enabled
}

// GetInactivityThreshold returns how long without motion counts as inactivity.
func (s *Settings) GetInactivityThreshold() time.Duration {
	if s.Inactivity == nil {
		return 4 * time.Hour
	}
	return parseDurationOr(s.Inactivity.Threshold, 4*time.Hour)
}

// GetInactivityCheckInterval returns the watchdog cadence.
func (s *Settings) GetInactivityCheckInterval() time.Duration {
	if s.Inactivity == nil {
		return 5 * time.Minute
	}
	return parseDurationOr(s.Inactivity.CheckInterval, 5*time.Minute)
}

// GetAnomalyEnabled reports whether baseline anomaly rules run.
func (s *Settings) GetAnomalyEnabled() bool {
	if s.Anomaly == nil || s.Anomaly.Enabled == nil {
		return false
	}
	return *s.Anomaly.Enabled
}

// GetAnomalyMetrics returns the metrics tracked for baseline deviation.
func (s *Settings) GetAnomalyMetrics() []string {
	if s.Anomaly == nil || len(s.Anomaly.Metrics) == 0 {
		return []string{"heart_rate_bpm"}
	}
	return s.Anomaly.Metrics
}

// GetAnomalySigma returns the deviation threshold in standard deviations.
func (s *Settings) GetAnomalySigma() float64 {
	if s.Anomaly == nil || s.Anomaly.Sigma == nil {
		return 3.0
	}
	return *s.Anomaly.Sigma
}

// GetAnomalyWindow returns the rolling window size in samples.
func (s *Settings) GetAnomalyWindow() int {
	if s.Anomaly == nil || s.Anomaly.Window == nil {
		return 240
	}
	return *s.Anomaly.Window
}

// GetAnomalyMinSamples returns how many samples must accumulate before the
// baseline is trusted.
func (s *Settings) GetAnomalyMinSamples() int {
	if s.Anomaly == nil || s.Anomaly.MinSamples == nil {
		return 60
	}
	return *s.Anomaly.MinSamples
}

// GetSMSEnabled reports whether critical alerts go out over SMS.
func (s *Settings) GetSMSEnabled() bool {
	if s.SMS == nil || s.SMS.Enabled == nil {
		return false
	}
	return *s.SMS.Enabled
}

// GetSMSPort returns the modem serial port.
func (s *Settings) GetSMSPort() string {
	if s.SMS == nil || s.SMS.Port == nil || *s.SMS.Port == "" {
		return "/dev/ttyUSB0"
	}
	return *s.SMS.Port
}

// GetSMSBaud returns the modem baud rate.
func (s *Settings) GetSMSBaud() int {
	if s.SMS == nil || s.SMS.Baud == nil {
		return 115200
	}
	return *s.SMS.Baud
}

// GetMQTTEnabled reports whether the telemetry feed runs.
func (s *Settings) GetMQTTEnabled() bool {
	if s.MQTT == nil || s.MQTT.Enabled == nil {
		return false
	}
	return *s.MQTT.Enabled
}

// GetMQTTBroker returns the broker URL.
func (s *Settings) GetMQTTBroker() string {
	if s.MQTT == nil || s.MQTT.Broker == nil || *s.MQTT.Broker == "" {
		return "tcp://127.0.0.1:1883"
	}
	return *s.MQTT.Broker
}

// GetMQTTTopicPrefix returns the topic namespace.
func (s *Settings) GetMQTTTopicPrefix() string {
	if s.MQTT == nil || s.MQTT.TopicPrefix == nil || *s.MQTT.TopicPrefix == "" {
		return "vigil"
	}
	return *s.MQTT.TopicPrefix
}

// GetMQTTEmbedded reports whether to run the in-process broker.
func (s *Settings) GetMQTTEmbedded() bool {
	if s.MQTT == nil || s.MQTT.Embedded == nil {
		return false
	}
	return *s.MQTT.Embedded
}

// GetMQTTEmbeddedListen returns the embedded broker's listen address.
func (s *Settings) GetMQTTEmbeddedListen() string {
	if s.MQTT == nil || s.MQTT.EmbeddedListen == nil || *s.MQTT.EmbeddedListen == "" {
		return ":1883"
	}
	return *s.MQTT.EmbeddedListen
}

// GetHTTPListen returns the API listen address.
func (s *Settings) GetHTTPListen() string {
	if s.HTTP == nil || s.HTTP.Listen == nil || *s.HTTP.Listen == "" {
		return ":8650"
	}
	return *s.HTTP.Listen
}

// GetDBPath returns the sqlite database path.
func (s *Settings) GetDBPath() string {
	if s.DBPath == nil || *s.DBPath == "" {
		return "vigil.db"
	}
	return *s.DBPath
}

// GetRetentionDays returns how long raw readings are kept.
func (s *Settings) GetRetentionDays() int {
	if s.RetentionDays == nil {
		return 30
	}
	return *s.RetentionDays
}

// GetSeverity resolves a rule's severity with its default.
func (r RuleSettings) GetSeverity() string {
	if r.Severity == nil || *r.Severity == "" {
		return "warning"
	}
	return *r.Severity
}

// GetDebounce resolves a rule's debounce window.
func (r RuleSettings) GetDebounce() time.Duration {
	return parseDurationOr(r.Debounce, 2*time.Second)
}

// GetCooldown resolves a rule's cooldown window.
func (r RuleSettings) GetCooldown() time.Duration {
	return parseDurationOr(r.Cooldown, 30*time.Second)
}

// GetMessage resolves a rule's alert message.
func (r RuleSettings) GetMessage() string {
	if r.Message == nil || *r.Message == "" {
		return r.Name
	}
	return *r.Message
}

// DefaultRules is the built-in rule set used when the config supplies none.
func DefaultRules() []RuleSettings {
	return []RuleSettings{
		{
			Name: "fall_detected", Metric: "accel_magnitude_g", Op: ">", Threshold: 2.5,
			Severity: ptrString("critical"), Debounce: ptrString("2s"),
			Cooldown: ptrString("30s"), Message: ptrString("Fall detected"),
		},
		{
			Name: "low_spo2", Metric: "spo2_pct", Op: "<", Threshold: 92,
			Severity: ptrString("warning"), Debounce: ptrString("30s"),
			Cooldown: ptrString("10m"), Message: ptrString("Blood oxygen low"),
		},
		{
			Name: "high_heart_rate", Metric: "heart_rate_bpm", Op: ">", Threshold: 120,
			Severity: ptrString("warning"), Debounce: ptrString("1m"),
			Cooldown: ptrString("10m"), Message: ptrString("Heart rate high"),
		},
		{
			Name: "low_heart_rate", Metric: "heart_rate_bpm", Op: "<", Threshold: 45,
			Severity: ptrString("warning"), Debounce: ptrString("1m"),
			Cooldown: ptrString("10m"), Message: ptrString("Heart rate low"),
		},
		{
			Name: "fever", Metric: "body_temp_c", Op: ">", Threshold: 38,
			Severity: ptrString("warning"), Debounce: ptrString("2m"),
			Cooldown: ptrString("30m"), Message: ptrString("Body temperature high"),
		},
	}
}
