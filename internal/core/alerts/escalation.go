package alerts

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// wantsEscalation reports whether an alert should have an armed escalation
func (m *Manager) wantsEscalation(alert *Alert) bool {
	return m.cfg.EscalationEnabled &&
		m.deferrer != nil &&
		alert.State == StateRaised &&
		alert.Severity == SeverityCritical
}

// syncEscalationLocked arms or disarms the escalation of alert after a
// change. An armed escalation keeps its original deadline.
func (m *Manager) syncEscalationLocked(alert *Alert) {
	_, armed := m.escalations[alert.ID]
	wants := m.wantsEscalation(alert)

	switch {
	case wants && !armed:
		m.scheduleEscalationLocked(alert.ID, m.cfg.EscalationDelay)
	case !wants && armed:
		m.cancelEscalationLocked(alert.ID)
	}
}

func (m *Manager) scheduleEscalationLocked(id string, delay time.Duration) {
	h := m.deferrer.Schedule(delay, func() { m.escalate(id) })
	if h == 0 {
		return
	}
	m.escalations[id] = h

	m.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"delay":    delay.String(),
	}).Debug("Escalation scheduled")
}

func (m *Manager) cancelEscalationLocked(id string) {
	h, ok := m.escalations[id]
	if !ok {
		return
	}
	delete(m.escalations, id)
	if m.deferrer != nil {
		m.deferrer.Cancel(h)
	}
}

// escalate runs when an escalation timer fires. The alert may have changed
// since the timer was armed, so its state is checked again under the lock.
func (m *Manager) escalate(id string) {
	m.mu.Lock()
	delete(m.escalations, id)
	alert := m.lookupLocked(id)
	if alert == nil || alert.State != StateRaised || alert.Severity != SeverityCritical {
		m.mu.Unlock()
		m.logger.WithField("alert_id", id).Debug("Escalation skipped, alert no longer eligible")
		return
	}

	now := m.clock.Now()
	alert.State = StateEscalated
	alert.EscalatedAt = &now
	alert.UpdatedAt = now
	snapshot := alert.Clone()
	fx := m.effectLocked(effectUpdate, TransitionEscalated, snapshot, now)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"key":      snapshot.Key,
		"age":      now.Sub(snapshot.CreatedAt).String(),
	}).Warn("Critical alert escalated after remaining unacknowledged")

	m.commit(context.Background(), fx)
}
