package approval

import (
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// EscalationThreshold converts the configured hours into a duration
func EscalationThreshold(settings entity.EscalationSettings) time.Duration {
	return time.Duration(settings.EscalationTimeHours * float64(time.Hour))
}

// StaleEntries returns the pending required entries that have waited at
// least the escalation threshold and have not been escalated yet. Escalation
// entries themselves are never escalated again.
func StaleEntries(chain []entity.ChainEntry, settings entity.EscalationSettings, now time.Time) []*entity.ChainEntry {
	if !settings.Enabled || settings.EscalationTimeHours <= 0 {
		return nil
	}
	threshold := EscalationThreshold(settings)

	escalated := make(map[string]bool)
	for i := range chain {
		if chain[i].IsEscalation && chain[i].EscalatedEntryID != "" {
			escalated[chain[i].EscalatedEntryID] = true
		}
	}

	var out []*entity.ChainEntry
	for i := range chain {
		e := &chain[i]
		if !e.IsPending() || !e.IsRequired || e.IsEscalation || escalated[e.ID] {
			continue
		}
		if now.Sub(e.CreatedAt) >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// EscalationEntries builds one pending required entry per approver for the
// stale entry. newID supplies entry identifiers.
func EscalationEntries(stale *entity.ChainEntry, approvers []string, now time.Time, newID func() string) []entity.ChainEntry {
	out := make([]entity.ChainEntry, 0, len(approvers))
	seen := make(map[string]bool)
	for _, a := range approvers {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, entity.ChainEntry{
			ID:               newID(),
			Approver:         a,
			Level:            entity.LevelOverride,
			StepName:         "Escalation of " + stepLabel(stale),
			Status:           entity.EntryStatusPending,
			IsRequired:       true,
			IsEscalation:     true,
			EscalatedEntryID: stale.ID,
			Rule:             entity.RuleTagEscalation,
			CreatedAt:        now,
		})
	}
	return out
}

func stepLabel(e *entity.ChainEntry) string {
	if e.StepName != "" {
		return e.StepName
	}
	return e.Approver
}
