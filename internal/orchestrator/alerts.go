package orchestrator

import (
	"time"

	"vigil-governor/internal/model"
)

// cooldownKey identifies one alert class: the same (level, cause) pair is
// emitted at most once per cooldown window.
type cooldownKey struct {
	level model.AlertLevel
	cause string
}

// emit appends and logs an alert unless its class is still cooling down.
// Returns the alert and whether it was actually emitted.
func (o *Orchestrator) emit(level model.AlertLevel, cause, msg string, pid int32, snap model.MemorySample) (model.Alert, bool) {
	now := o.now()
	key := cooldownKey{level: level, cause: cause}
	if last, ok := o.lastEmit[key]; ok && now.Sub(last) < o.cfg.AlertCooldown {
		return model.Alert{}, false
	}
	o.lastEmit[key] = now

	alert := model.Alert{
		Timestamp: now,
		Level:     level,
		Cause:     cause,
		Message:   msg,
		PID:       pid,
		Snapshot:  snap,
	}
	o.alerts = append(o.alerts, alert)
	if len(o.alerts) > o.cfg.AlertHistorySize {
		o.alerts = o.alerts[len(o.alerts)-o.cfg.AlertHistorySize:]
	}
	o.logger.Warn("alert", "level", string(level), "cause", cause, "message", msg, "pid", pid)
	return alert, true
}

// RecordProcessAlert counts one per-process alert for escalation accounting.
// When the same pid accumulates alerts beyond the configured count inside
// the sliding window, an ESCALATION event is raised. Escalation is reported
// only; it triggers no further remediation.
func (o *Orchestrator) RecordProcessAlert(pid int32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	kept := pruneTimes(o.perPidAlerts[pid], now.Add(-o.cfg.EscalationWindow))
	kept = append(kept, now)
	o.perPidAlerts[pid] = kept

	if len(kept) >= o.cfg.EscalationCount {
		o.escalated = true
		o.logger.Error("escalation: automated remediation is not holding, human attention needed",
			"pid", pid, "alerts_in_window", len(kept), "window", o.cfg.EscalationWindow)
		delete(o.perPidAlerts, pid)
	}
}

// RecentAlerts returns a copy of the capped alert history.
func (o *Orchestrator) RecentAlerts() []model.Alert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Alert(nil), o.alerts...)
}

// Conditions reports systemic conditions currently raised.
func (o *Orchestrator) Conditions() []model.Condition {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []model.Condition
	if o.degraded {
		out = append(out, model.ConditionSamplerDegraded)
	}
	if o.escalated {
		out = append(out, model.ConditionEscalation)
	}
	return out
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
