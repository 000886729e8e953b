package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func directoryUsers() []*entity.User {
	inactive := user("gone", entity.RoleManager, "")
	inactive.IsActive = false

	foreign := user("outsider", entity.RoleAdmin, "")
	foreign.TenantID = "globex"

	return []*entity.User{
		user("emp", entity.RoleEmployee, "mgr"),
		user("mgr", entity.RoleManager, "mgr"),
		user("orphan", entity.RoleEmployee, "gone"),
		user("zed", entity.RoleAdmin, ""),
		user("adm", entity.RoleAdmin, ""),
		inactive,
		foreign,
	}
}

func TestDirectoryService_LookupUser(t *testing.T) {
	h := newHarness(directoryUsers()...)

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "active user", id: "emp"},
		{name: "inactive user", id: "gone", wantErr: true},
		{name: "other tenant", id: "outsider", wantErr: true},
		{name: "unknown", id: "nobody", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := h.directory.LookupUser(context.Background(), testTenant, tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, approval.ErrUserNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, u.ID)
		})
	}
}

func TestDirectoryService_LookupActiveUsers(t *testing.T) {
	h := newHarness(directoryUsers()...)

	users, err := h.directory.LookupActiveUsers(context.Background(), testTenant,
		[]string{"zed", "gone", "emp", "outsider", "zed", "", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, []string{"zed", "emp"}, userIDs(users))
}

func TestDirectoryService_LookupManager(t *testing.T) {
	h := newHarness(directoryUsers()...)

	tests := []struct {
		name        string
		userID      string
		wantManager string
	}{
		{name: "has manager", userID: "emp", wantManager: "mgr"},
		{name: "own manager", userID: "mgr"},
		{name: "inactive manager", userID: "orphan"},
		{name: "no manager", userID: "adm"},
		{name: "unknown user", userID: "nobody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := h.directory.LookupManager(context.Background(), testTenant, tt.userID)
			require.NoError(t, err)
			if tt.wantManager == "" {
				assert.Nil(t, mgr)
				return
			}
			require.NotNil(t, mgr)
			assert.Equal(t, tt.wantManager, mgr.ID)
		})
	}
}

func TestDirectoryService_LookupAdmins(t *testing.T) {
	h := newHarness(directoryUsers()...)

	admins, err := h.directory.LookupAdmins(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"adm", "zed"}, userIDs(admins))
}

func TestDirectoryService_UpsertUser(t *testing.T) {
	tests := []struct {
		name     string
		user     *entity.User
		wantRole string
		wantErr  bool
	}{
		{name: "defaults role", user: &entity.User{ID: "new", TenantID: testTenant, IsActive: true}, wantRole: entity.RoleEmployee},
		{name: "keeps role", user: &entity.User{ID: "boss", TenantID: testTenant, Role: entity.RoleAdmin}, wantRole: entity.RoleAdmin},
		{name: "unknown role", user: &entity.User{ID: "x", TenantID: testTenant, Role: "owner"}, wantErr: true},
		{name: "missing id", user: &entity.User{TenantID: testTenant}, wantErr: true},
		{name: "missing tenant", user: &entity.User{ID: "x"}, wantErr: true},
		{name: "bad email", user: &entity.User{ID: "x", TenantID: testTenant, Email: "x@"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()

			err := h.directory.UpsertUser(context.Background(), tt.user)
			if tt.wantErr {
				assert.ErrorIs(t, err, approval.ErrValidation)
				return
			}
			require.NoError(t, err)

			stored, err := h.users.Get(context.Background(), tt.user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, stored.Role)
			assert.False(t, stored.CreatedAt.IsZero())
		})
	}
}
