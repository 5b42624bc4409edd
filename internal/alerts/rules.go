package alerts

import (
	"time"

	"github.com/vigil-care/vigil/internal/config"
	"github.com/vigil-care/vigil/internal/monitoring"
)

// Rule states. Triggered is the instant a breach first lands and always
// advances to Debouncing in the same evaluation, so persisted state is only
// ever Idle or Debouncing.
const (
	StateIdle       = "idle"
	StateTriggered  = "triggered"
	StateDebouncing = "debouncing"
)

// Rule is one threshold condition over a single metric.
type Rule struct {
	Name      string
	Metric    string
	Op        string
	Threshold float64
	Severity  string
	Message   string

	// Debounce is the window after a trigger during which further
	// breaches are absorbed without re-emitting.
	Debounce time.Duration

	// Cooldown suppresses emission, and only emission, for this long
	// after an emitted event. The state machine keeps running so the
	// rule's counters stay truthful.
	Cooldown time.Duration
}

// RulesFromSettings converts configured rules, folding in the per-rule
// defaults.
func RulesFromSettings(settings []config.RuleSettings) []Rule {
	rules := make([]Rule, 0, len(settings))
	for _, rs := range settings {
		rules = append(rules, Rule{
			Name:      rs.Name,
			Metric:    rs.Metric,
			Op:        rs.Op,
			Threshold: rs.Threshold,
			Severity:  rs.GetSeverity(),
			Message:   rs.GetMessage(),
			Debounce:  rs.GetDebounce(),
			Cooldown:  rs.GetCooldown(),
		})
	}
	return rules
}

// compare applies op between value and threshold. Ops are validated at
// config load; an unknown op evaluates false.
func compare(value float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	}
	return false
}

// ruleState runs the per-rule machine. Time flows from reading timestamps,
// not the wall clock, so evaluation is deterministic and replayable.
type ruleState struct {
	rule        Rule
	state       string
	triggeredAt time.Time
	lastEmit    time.Time
	emitted     uint64
	suppressed  uint64
}

func newRuleState(rule Rule) *ruleState {
	return &ruleState{rule: rule, state: StateIdle}
}

// evaluate advances the machine with one metric sample. It returns the
// event to emit, if any. A breach inside the debounce window is absorbed;
// the window does not slide. A breach after the window re-triggers, and the
// cooldown then decides whether the re-trigger actually emits.
func (rs *ruleState) evaluate(value float64, at time.Time) (Event, bool) {
	if rs.state == StateDebouncing {
		if at.Sub(rs.triggeredAt) < rs.rule.Debounce {
			return Event{}, false
		}
		rs.state = StateIdle
	}

	if !compare(value, rs.rule.Op, rs.rule.Threshold) {
		return Event{}, false
	}

	rs.state = StateDebouncing
	rs.triggeredAt = at

	if !rs.lastEmit.IsZero() && at.Sub(rs.lastEmit) < rs.rule.Cooldown {
		rs.suppressed++
		monitoring.Diagf("alerts: %s re-triggered at %.2f inside cooldown, suppressed",
			rs.rule.Name, value)
		return Event{}, false
	}
	rs.lastEmit = at
	rs.emitted++

	return Event{
		ID:        newEventID(),
		Rule:      rs.rule.Name,
		Severity:  rs.rule.Severity,
		Message:   rs.rule.Message,
		Metric:    rs.rule.Metric,
		Value:     value,
		Threshold: rs.rule.Threshold,
		Time:      at,
	}, true
}

// RuleStatus reports one rule's machine for the status API. State advances
// lazily on evaluation, so a rule shows Debouncing until the next sample of
// its metric arrives after the window.
type RuleStatus struct {
	Name       string    `json:"name"`
	Metric     string    `json:"metric"`
	Severity   string    `json:"severity"`
	State      string    `json:"state"`
	Emitted    uint64    `json:"emitted"`
	Suppressed uint64    `json:"suppressed"`
	LastEmit   time.Time `json:"last_emit,omitzero"`
}

func (rs *ruleState) status() RuleStatus {
	return RuleStatus{
		Name:       rs.rule.Name,
		Metric:     rs.rule.Metric,
		Severity:   rs.rule.Severity,
		State:      rs.state,
		Emitted:    rs.emitted,
		Suppressed: rs.suppressed,
		LastEmit:   rs.lastEmit,
	}
}
