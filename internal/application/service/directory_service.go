package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// DirectoryService is the approver directory backed by the user repository.
// It also exposes user maintenance for seeding.
type DirectoryService interface {
	port.ApproverDirectory

	UpsertUser(ctx context.Context, user *entity.User) error
	ListUsers(ctx context.Context, tenantID string) ([]*entity.User, error)
}

type directoryServiceImpl struct {
	userRepo port.UserRepository
	logger   Logger
	now      func() time.Time
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(userRepo port.UserRepository, logger Logger) DirectoryService {
	return &directoryServiceImpl{
		userRepo: userRepo,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *directoryServiceImpl) LookupUser(ctx context.Context, tenantID, userID string) (*entity.User, error) {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.TenantID != tenantID || !u.IsActive {
		return nil, approval.E("lookup user", approval.ErrUserNotFound, "%s", userID)
	}
	return u, nil
}

func (s *directoryServiceImpl) LookupActiveUsers(ctx context.Context, tenantID string, ids []string) ([]*entity.User, error) {
	out := make([]*entity.User, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		u, err := s.LookupUser(ctx, tenantID, id)
		if errors.Is(err, approval.ErrUserNotFound) {
			s.logger.Warn("Skipping unknown or inactive approver", "tenant_id", tenantID, "user_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *directoryServiceImpl) LookupManager(ctx context.Context, tenantID, userID string) (*entity.User, error) {
	u, err := s.LookupUser(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, approval.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if u.ManagerID == "" || u.ManagerID == u.ID {
		return nil, nil
	}

	mgr, err := s.LookupUser(ctx, tenantID, u.ManagerID)
	if errors.Is(err, approval.ErrUserNotFound) {
		return nil, nil
	}
	return mgr, err
}

func (s *directoryServiceImpl) LookupAdmins(ctx context.Context, tenantID string) ([]*entity.User, error) {
	users, err := s.userRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var admins []*entity.User
	for _, u := range users {
		if u.IsActive && u.IsAdmin() {
			admins = append(admins, u)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID < admins[j].ID })
	return admins, nil
}

func (s *directoryServiceImpl) UpsertUser(ctx context.Context, user *entity.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return &approval.ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(user.TenantID) == "" {
		return &approval.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	switch user.Role {
	case entity.RoleAdmin, entity.RoleManager, entity.RoleEmployee:
	case "":
		user.Role = entity.RoleEmployee
	default:
		return &approval.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", user.Role)}
	}

	if user.Email != "" {
		if err := utils.ValidateEmail(user.Email); err != nil {
			return &approval.ValidationError{Field: "email", Message: err.Error()}
		}
	}

	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		s.logger.Error("Failed to upsert user", "error", err, "user_id", user.ID)
		return err
	}
	s.logger.Info("User upserted", "user_id", user.ID, "tenant_id", user.TenantID, "role", user.Role)
	return nil
}

func (s *directoryServiceImpl) ListUsers(ctx context.Context, tenantID string) ([]*entity.User, error) {
	return s.userRepo.ListByTenant(ctx, tenantID)
}
