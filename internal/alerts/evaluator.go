package alerts

import (
	"sync"

	"github.com/vigil-care/vigil/internal/sensors"
)

// Evaluator runs every configured rule against the reading stream and hands
// emitted events to the injected emit callback, normally the hub router's
// EmitAlert. It satisfies the hub's Consumer contract.
type Evaluator struct {
	emit func(Event)

	mu    sync.Mutex
	rules []*ruleState
}

// NewEvaluator creates an Evaluator over the given rules.
func NewEvaluator(rules []Rule, emit func(Event)) *Evaluator {
	e := &Evaluator{emit: emit}
	for _, r := range rules {
		e.rules = append(e.rules, newRuleState(r))
	}
	return e
}

// Name identifies the evaluator in router status output.
func (e *Evaluator) Name() string { return "alerts" }

// OnReading evaluates each rule whose metric the reading carries. Rules
// whose metric is absent are simply not evaluable on this reading and keep
// their state. Events are emitted after the rule lock is released so a sink
// may query RuleStates without deadlocking.
func (e *Evaluator) OnReading(r sensors.Reading) error {
	var events []Event
	e.mu.Lock()
	for _, rs := range e.rules {
		value, ok := r.Value(rs.rule.Metric)
		if !ok {
			continue
		}
		ev, fire := rs.evaluate(value, r.Time)
		if !fire {
			continue
		}
		ev.Model = r.Model
		ev.Addr = r.Addr
		events = append(events, ev)
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.emit(ev)
	}
	return nil
}

// RuleStates reports every rule's machine in configuration order.
func (e *Evaluator) RuleStates() []RuleStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RuleStatus, 0, len(e.rules))
	for _, rs := range e.rules {
		out = append(out, rs.status())
	}
	return out
}
