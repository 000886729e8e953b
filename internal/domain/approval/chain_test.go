package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func entry(id, approver string, level int) entity.ChainEntry {
	return entity.ChainEntry{
		ID:         id,
		Approver:   approver,
		Level:      level,
		Status:     entity.EntryStatusPending,
		IsRequired: true,
	}
}

func TestCurrentLevelAndEligibility(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		entry("e2", "admin", 2),
	}

	level, ok := CurrentLevel(chain)
	require.True(t, ok)
	assert.Equal(t, 1, level)
	assert.Equal(t, []string{"manager"}, CurrentApprovers(chain))

	assert.True(t, IsEligible(chain, &chain[0], "manager"))
	assert.False(t, IsEligible(chain, &chain[1], "admin"), "higher level must wait")
	assert.False(t, IsEligible(chain, &chain[0], "admin"), "not the owner")

	_, err := SelectForApproval(chain, "admin", "")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)
	assert.Equal(t, KindNotEligibleApprover, KindOf(err))

	chain[0].Status = entity.EntryStatusApproved
	e, err := SelectForApproval(chain, "admin", "e2")
	require.NoError(t, err)
	assert.Equal(t, "e2", e.ID)
}

func TestParallelStep_AnyOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	chain := []entity.ChainEntry{
		entry("a", "alice", 1),
		entry("b", "bob", 1),
		entry("c", "carol", 2),
	}

	assert.ElementsMatch(t, []string{"alice", "bob"}, CurrentApprovers(chain))

	e, err := SelectForApproval(chain, "bob", "")
	require.NoError(t, err)
	ResolveEntry(chain, e, entity.EntryStatusApproved, "ok", now)
	assert.False(t, AllRequiredApproved(chain))
	assert.Equal(t, []string{"alice"}, CurrentApprovers(chain))

	_, err = SelectForApproval(chain, "carol", "")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)

	e, err = SelectForApproval(chain, "alice", "")
	require.NoError(t, err)
	ResolveEntry(chain, e, entity.EntryStatusApproved, "", now)
	assert.Equal(t, []string{"carol"}, CurrentApprovers(chain))

	e, err = SelectForApproval(chain, "carol", "")
	require.NoError(t, err)
	ResolveEntry(chain, e, entity.EntryStatusApproved, "", now)
	assert.True(t, AllRequiredApproved(chain))
	require.NotNil(t, chain[2].ActionDate)
	assert.Equal(t, now, *chain[2].ActionDate)
}

func TestSelectForRejection_AnyLevel(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		entry("e2", "admin", 2),
	}

	e, err := SelectForRejection(chain, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, "e2", e.ID)

	_, err = SelectForRejection(chain, "stranger", "")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)

	_, err = SelectForRejection(chain, "manager", "e2")
	assert.ErrorIs(t, err, ErrNotEligibleApprover)
}

func TestAllRequiredApproved_NonRequiredOnly(t *testing.T) {
	now := time.Now()
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		entry("e2", "admin", 2),
	}
	chain[0].IsRequired = false
	chain[1].IsRequired = false

	assert.True(t, AllRequiredApproved(chain))
	assert.True(t, AllRequiredApproved(nil))

	e, err := SelectForApproval(chain, "manager", "")
	require.NoError(t, err)
	ResolveEntry(chain, e, entity.EntryStatusApproved, "", now)

	assert.True(t, AllRequiredApproved(chain))
	assert.True(t, chain[1].IsPending())
}

func TestAllRequiredApproved_MixedChain(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		entry("e2", "admin", 2),
	}
	chain[0].IsRequired = false

	assert.False(t, AllRequiredApproved(chain))
	chain[1].Status = entity.EntryStatusApproved
	assert.True(t, AllRequiredApproved(chain))
}

func TestEscalationEntry_ActsAtEscalatedLevel(t *testing.T) {
	now := time.Now()
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		entry("e2", "admin", 2),
		{
			ID: "x1", Approver: "director", Level: entity.LevelOverride, Status: entity.EntryStatusPending,
			IsRequired: true, IsEscalation: true, EscalatedEntryID: "e1",
		},
		{
			ID: "x2", Approver: "vp", Level: entity.LevelOverride, Status: entity.EntryStatusPending,
			IsRequired: true, IsEscalation: true, EscalatedEntryID: "e1",
		},
	}

	assert.Equal(t, 1, EffectiveLevel(chain, &chain[2]))
	assert.ElementsMatch(t, []string{"manager", "director", "vp"}, CurrentApprovers(chain))

	e, err := SelectForApproval(chain, "director", "")
	require.NoError(t, err)
	ResolveEntry(chain, e, entity.EntryStatusApproved, "covering", now)

	assert.Equal(t, entity.EntryStatusApproved, chain[0].Status)
	assert.True(t, chain[0].AutoClosed)
	assert.Equal(t, entity.EntryStatusApproved, chain[3].Status)
	assert.True(t, chain[3].AutoClosed)
	assert.False(t, chain[2].AutoClosed)
	assert.Equal(t, []string{"admin"}, CurrentApprovers(chain))
}

func TestOriginalApprover_SupersedesEscalation(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("e1", "manager", 1),
		{
			ID: "x1", Approver: "director", Level: entity.LevelOverride, Status: entity.EntryStatusPending,
			IsRequired: true, IsEscalation: true, EscalatedEntryID: "e1",
		},
	}

	ResolveEntry(chain, &chain[0], entity.EntryStatusApproved, "", time.Now())

	assert.Equal(t, entity.EntryStatusApproved, chain[1].Status)
	assert.True(t, chain[1].AutoClosed)
	assert.True(t, AllRequiredApproved(chain))
}

func TestForceClosePending(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("e1", "a", 1),
		entry("e2", "b", 2),
	}
	chain[0].Status = entity.EntryStatusApproved

	n := ForceClosePending(chain, "CFO fast track", time.Now())

	assert.Equal(t, 1, n)
	assert.True(t, chain[1].AutoClosed)
	assert.Equal(t, `Auto-approved by rule "CFO fast track"`, chain[1].Comments)
	assert.False(t, chain[0].AutoClosed)
}

func TestOverrideEntry(t *testing.T) {
	e := OverrideEntry("o1", "admin", entity.EntryStatusRejected, "duplicate claim", time.Now())

	assert.Equal(t, entity.LevelOverride, e.Level)
	assert.Equal(t, entity.RuleTagAdminOverride, e.Rule)
	assert.Equal(t, "Admin override: duplicate claim", e.Comments)
	assert.Equal(t, entity.EntryStatusRejected, e.Status)
}

func TestSortChain_Stable(t *testing.T) {
	chain := []entity.ChainEntry{
		entry("c", "c", 2),
		entry("a", "a", 1),
		entry("b", "b", 1),
	}
	SortChain(chain)
	assert.Equal(t, "a", chain[0].ID)
	assert.Equal(t, "b", chain[1].ID)
	assert.Equal(t, "c", chain[2].ID)
}
