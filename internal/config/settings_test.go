package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptySettingsDefaults(t *testing.T) {
	s := EmptySettings()

	if got := s.GetPollInterval(); got != 2*time.Second {
		t.Errorf("GetPollInterval() = %v, want 2s", got)
	}
	if got := s.GetRefreshInterval(); got != time.Minute {
		t.Errorf("GetRefreshInterval() = %v, want 60s", got)
	}
	if got := s.GetBusName(); got != "1" {
		t.Errorf("GetBusName() = %q, want \"1\"", got)
	}
	if got := s.GetBusTimeout(); got != 250*time.Millisecond {
		t.Errorf("GetBusTimeout() = %v, want 250ms", got)
	}
	if got := s.GetHTTPListen(); got != ":8650" {
		t.Errorf("GetHTTPListen() = %q, want :8650", got)
	}
	if got := s.GetDBPath(); got != "vigil.db" {
		t.Errorf("GetDBPath() = %q, want vigil.db", got)
	}
	if got := s.GetRetentionDays(); got != 30 {
		t.Errorf("GetRetentionDays() = %d, want 30", got)
	}
	if s.GetSMSEnabled() || s.GetMQTTEnabled() {
		t.Error("SMS/MQTT should default to disabled")
	}
	if !s.GetInactivityEnabled() {
		t.Error("inactivity watchdog should default to enabled")
	}
	if got := s.GetInactivityThreshold(); got != 4*time.Hour {
		t.Errorf("GetInactivityThreshold() = %v, want 4h", got)
	}
	if got := len(s.GetRules()); got == 0 {
		t.Error("GetRules() returned nothing, want the built-in set")
	}
}

func TestLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "poll_interval": "5s",
  "bus": {"name": "2", "timeout": "300ms"},
  "enabled_models": ["bme280"],
  "rules": [
    {"name": "custom", "metric": "temperature_c", "op": ">", "threshold": 30}
  ],
  "medication_times": ["08:00", "20:00"],
  "http": {"listen": ":9000"},
  "db_path": "/var/lib/vigil/vigil.db",
  "retention_days": 7
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSettings(configPath)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	if got := cfg.GetPollInterval(); got != 5*time.Second {
		t.Errorf("GetPollInterval() = %v, want 5s", got)
	}
	// omitted fields keep defaults
	if got := cfg.GetRefreshInterval(); got != time.Minute {
		t.Errorf("GetRefreshInterval() = %v, want default 60s", got)
	}
	if got := cfg.GetBusName(); got != "2" {
		t.Errorf("GetBusName() = %q, want \"2\"", got)
	}
	if got := cfg.GetBusTimeout(); got != 300*time.Millisecond {
		t.Errorf("GetBusTimeout() = %v, want 300ms", got)
	}
	if got := cfg.GetHTTPListen(); got != ":9000" {
		t.Errorf("GetHTTPListen() = %q, want :9000", got)
	}
	if got := cfg.GetRetentionDays(); got != 7 {
		t.Errorf("GetRetentionDays() = %d, want 7", got)
	}

	rules := cfg.GetRules()
	if len(rules) != 1 || rules[0].Name != "custom" {
		t.Fatalf("GetRules() = %+v, want the single configured rule", rules)
	}
	// rule-level defaults fill unset fields
	if got := rules[0].GetSeverity(); got != "warning" {
		t.Errorf("GetSeverity() = %q, want warning", got)
	}
	if got := rules[0].GetDebounce(); got != 2*time.Second {
		t.Errorf("GetDebounce() = %v, want 2s", got)
	}
	if got := rules[0].GetCooldown(); got != 30*time.Second {
		t.Errorf("GetCooldown() = %v, want 30s", got)
	}
	if got := rules[0].GetMessage(); got != "custom" {
		t.Errorf("GetMessage() = %q, want rule name fallback", got)
	}
}

func TestLoadSettingsRejectsWrongExtension(t *testing.T) {
	if _, err := LoadSettings("settings.yaml"); err == nil {
		t.Error("LoadSettings accepted a non-JSON extension")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("LoadSettings accepted a missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantSub string
	}{
		{
			"unknown op",
			func(s *Settings) {
				s.Rules = []RuleSettings{{Name: "r", Metric: "m", Op: "~="}}
			},
			"unknown op",
		},
		{
			"unnamed rule",
			func(s *Settings) {
				s.Rules = []RuleSettings{{Metric: "m", Op: ">"}}
			},
			"no name",
		},
		{
			"duplicate rule",
			func(s *Settings) {
				s.Rules = []RuleSettings{
					{Name: "r", Metric: "m", Op: ">"},
					{Name: "r", Metric: "m", Op: "<"},
				}
			},
			"duplicate",
		},
		{
			"unknown severity",
			func(s *Settings) {
				s.Rules = []RuleSettings{{Name: "r", Metric: "m", Op: ">", Severity: ptrString("panic")}}
			},
			"severity",
		},
		{
			"bus timeout too long",
			func(s *Settings) {
				s.Bus = &BusSettings{Timeout: ptrString("2s")}
			},
			"bus.timeout",
		},
		{
			"bus timeout too short",
			func(s *Settings) {
				s.Bus = &BusSettings{Timeout: ptrString("10ms")}
			},
			"bus.timeout",
		},
		{
			"bad medication time",
			func(s *Settings) {
				s.MedicationTimes = []string{"25:99"}
			},
			"medication",
		},
		{
			"bad poll interval",
			func(s *Settings) {
				s.PollInterval = ptrString("soon")
			},
			"poll_interval",
		},
		{
			"negative retention",
			func(s *Settings) {
				s.RetentionDays = ptrInt(-1)
			},
			"retention_days",
		},
		{
			"zero sigma",
			func(s *Settings) {
				s.Anomaly = &AnomalySettings{Sigma: ptrFloat64(0)}
			},
			"sigma",
		},
		{
			"contact without phone",
			func(s *Settings) {
				s.EmergencyContacts = []Contact{{Name: "Ana"}}
			},
			"phone",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := EmptySettings()
			tc.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	s := EmptySettings()
	s.Rules = DefaultRules()
	if err := s.Validate(); err != nil {
		t.Fatalf("built-in rules fail validation: %v", err)
	}

	var fall *RuleSettings
	for i := range s.Rules {
		if s.Rules[i].Name == "fall_detected" {
			fall = &s.Rules[i]
		}
	}
	if fall == nil {
		t.Fatal("built-in rules lack fall_detected")
	}
	if fall.Metric != "accel_magnitude_g" || fall.Op != ">" || fall.Threshold != 2.5 {
		t.Errorf("fall rule = %+v, want accel_magnitude_g > 2.5", fall)
	}
	if fall.GetSeverity() != "critical" {
		t.Errorf("fall severity = %q, want critical", fall.GetSeverity())
	}
	if fall.GetDebounce() != 2*time.Second {
		t.Errorf("fall debounce = %v, want 2s", fall.GetDebounce())
	}
}

func TestMustLoadDefaultSettings(t *testing.T) {
	cfg := MustLoadDefaultSettings()

	if got := cfg.GetPollInterval(); got != 2*time.Second {
		t.Errorf("defaults file poll_interval = %v, want 2s", got)
	}
	if got := cfg.GetHTTPListen(); got != ":8650" {
		t.Errorf("defaults file http.listen = %q, want :8650", got)
	}
	if got := len(cfg.GetRules()); got != 5 {
		t.Errorf("defaults file carries %d rules, want 5", got)
	}
	if !cfg.GetInactivityEnabled() {
		t.Error("defaults file should enable the inactivity watchdog")
	}
	if cfg.GetAnomalyEnabled() {
		t.Error("defaults file should leave anomaly rules off")
	}
}
