package approval

import (
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// SortChain orders entries by ascending level, keeping insertion order
// within a level.
func SortChain(chain []entity.ChainEntry) {
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Level < chain[j].Level
	})
}

// EffectiveLevel is the level at which an entry may be acted on. Escalation
// entries act at the level of the entry they escalate.
func EffectiveLevel(chain []entity.ChainEntry, e *entity.ChainEntry) int {
	if e.IsEscalation && e.EscalatedEntryID != "" {
		for i := range chain {
			if chain[i].ID == e.EscalatedEntryID {
				return chain[i].Level
			}
		}
	}
	return e.Level
}

// CurrentLevel returns the minimum effective level among pending entries.
// ok is false when nothing is pending.
func CurrentLevel(chain []entity.ChainEntry) (level int, ok bool) {
	for i := range chain {
		if !chain[i].IsPending() {
			continue
		}
		l := EffectiveLevel(chain, &chain[i])
		if !ok || l < level {
			level, ok = l, true
		}
	}
	return level, ok
}

// CurrentApprovers lists the distinct approvers holding a pending entry at
// the current level.
func CurrentApprovers(chain []entity.ChainEntry) []string {
	level, ok := CurrentLevel(chain)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for i := range chain {
		e := &chain[i]
		if !e.IsPending() || EffectiveLevel(chain, e) != level || seen[e.Approver] {
			continue
		}
		seen[e.Approver] = true
		out = append(out, e.Approver)
	}
	return out
}

// IsEligible reports whether actor may approve the entry right now
func IsEligible(chain []entity.ChainEntry, e *entity.ChainEntry, actorID string) bool {
	if e == nil || !e.IsPending() || e.Approver != actorID {
		return false
	}
	level, ok := CurrentLevel(chain)
	return ok && EffectiveLevel(chain, e) == level
}

// HasPendingFor reports whether actor holds any pending entry in the chain
func HasPendingFor(chain []entity.ChainEntry, actorID string) bool {
	for i := range chain {
		if chain[i].IsPending() && chain[i].Approver == actorID {
			return true
		}
	}
	return false
}

// AllRequiredApproved reports whether no required entry is still pending. A
// chain with no required entries is approved by default.
func AllRequiredApproved(chain []entity.ChainEntry) bool {
	for i := range chain {
		if chain[i].IsRequired && chain[i].Status != entity.EntryStatusApproved {
			return false
		}
	}
	return true
}

// ApprovedCount returns the number of approved entries
func ApprovedCount(chain []entity.ChainEntry) int {
	n := 0
	for i := range chain {
		if chain[i].Status == entity.EntryStatusApproved {
			n++
		}
	}
	return n
}

// SelectForApproval finds the entry the actor approves. With an explicit
// entryID that entry must be eligible; otherwise the actor's first eligible
// entry is used.
func SelectForApproval(chain []entity.ChainEntry, actorID, entryID string) (*entity.ChainEntry, error) {
	if entryID != "" {
		e := findEntry(chain, entryID)
		if !IsEligible(chain, e, actorID) {
			return nil, E("approve", ErrNotEligibleApprover, "entry %s is not actionable by %s", entryID, actorID)
		}
		return e, nil
	}

	for i := range chain {
		if IsEligible(chain, &chain[i], actorID) {
			return &chain[i], nil
		}
	}
	return nil, E("approve", ErrNotEligibleApprover, "%s has no entry at the current level", actorID)
}

// SelectForRejection finds the entry the actor rejects. Rejection needs only
// ownership of a pending entry, at any level.
func SelectForRejection(chain []entity.ChainEntry, actorID, entryID string) (*entity.ChainEntry, error) {
	if entryID != "" {
		e := findEntry(chain, entryID)
		if e == nil || e.Approver != actorID || !e.IsPending() {
			return nil, E("reject", ErrNotEligibleApprover, "entry %s is not actionable by %s", entryID, actorID)
		}
		return e, nil
	}

	var best *entity.ChainEntry
	for i := range chain {
		e := &chain[i]
		if !e.IsPending() || e.Approver != actorID {
			continue
		}
		if best == nil || EffectiveLevel(chain, e) < EffectiveLevel(chain, best) {
			best = e
		}
	}
	if best == nil {
		return nil, E("reject", ErrNotEligibleApprover, "%s has no pending entry", actorID)
	}
	return best, nil
}

// ResolveEntry records the actor's decision on an entry and closes the
// entries linked to it through escalation.
func ResolveEntry(chain []entity.ChainEntry, e *entity.ChainEntry, status, comments string, now time.Time) {
	at := now
	e.Status = status
	e.Comments = comments
	e.ActionDate = &at

	if status != entity.EntryStatusApproved {
		return
	}

	if e.IsEscalation {
		src := findEntry(chain, e.EscalatedEntryID)
		if src != nil && src.IsPending() {
			closeEntry(src, fmt.Sprintf("Resolved by escalation approver %s", e.Approver), now)
		}
		for i := range chain {
			sib := &chain[i]
			if sib.ID != e.ID && sib.IsPending() && sib.IsEscalation && sib.EscalatedEntryID == e.EscalatedEntryID {
				closeEntry(sib, fmt.Sprintf("Superseded by escalation approver %s", e.Approver), now)
			}
		}
		return
	}

	for i := range chain {
		esc := &chain[i]
		if esc.IsPending() && esc.IsEscalation && esc.EscalatedEntryID == e.ID {
			closeEntry(esc, fmt.Sprintf("Superseded: %s acted on the escalated entry", e.Approver), now)
		}
	}
}

// ForceClosePending closes every pending entry as approved after a
// conditional rule fired. It returns the number of entries closed.
func ForceClosePending(chain []entity.ChainEntry, ruleName string, now time.Time) int {
	n := 0
	for i := range chain {
		if chain[i].IsPending() {
			closeEntry(&chain[i], fmt.Sprintf("Auto-approved by rule %q", ruleName), now)
			n++
		}
	}
	return n
}

// OverrideEntry builds the entry recorded when an admin forces a decision
func OverrideEntry(id, adminID string, decision, comments string, now time.Time) entity.ChainEntry {
	at := now
	return entity.ChainEntry{
		ID:         id,
		Approver:   adminID,
		Level:      entity.LevelOverride,
		StepName:   "Admin override",
		Status:     decision,
		IsRequired: false,
		Rule:       entity.RuleTagAdminOverride,
		Comments:   "Admin override: " + comments,
		ActionDate: &at,
		CreatedAt:  now,
	}
}

func closeEntry(e *entity.ChainEntry, comments string, now time.Time) {
	at := now
	e.Status = entity.EntryStatusApproved
	e.AutoClosed = true
	e.Comments = comments
	e.ActionDate = &at
}

func findEntry(chain []entity.ChainEntry, id string) *entity.ChainEntry {
	if id == "" {
		return nil
	}
	for i := range chain {
		if chain[i].ID == id {
			return &chain[i]
		}
	}
	return nil
}
