package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/buildledger/buildledger/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Insert(ctx context.Context, input NewUser, passwordHash string) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context) ([]User, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

// Service handles user account business logic.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	audit  shared.Auditor
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, audit shared.Auditor) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

// Provision creates a user account. Only superadmins can manage accounts.
func (s *Service) Provision(ctx context.Context, actor shared.Actor, input NewUser) (User, error) {
	if !shared.Allows(actor.Role, shared.OpUserManage) {
		return User{}, fmt.Errorf("%w: role %s cannot manage users", shared.ErrForbidden, actor.Role)
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Name == "" || input.Email == "" {
		return User{}, fmt.Errorf("%w: name and email are required", shared.ErrValidation)
	}
	if !input.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, input.Role)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("identity: hash password: %w", err)
	}

	user, err := s.repo.Insert(ctx, input, string(hash))
	if err != nil {
		return User{}, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "user.provision",
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", user.ID),
		Meta:     map[string]any{"role": user.Role, "email": user.Email},
	}); err != nil {
		s.logger.Warn("audit user.provision", slog.Any("error", err))
	}
	return user, nil
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if !shared.Allows(actor.Role, shared.OpUserManage) {
		return User{}, fmt.Errorf("%w: role %s cannot manage users", shared.ErrForbidden, actor.Role)
	}
	return s.repo.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]User, error) {
	if !shared.Allows(actor.Role, shared.OpUserManage) {
		return nil, fmt.Errorf("%w: role %s cannot manage users", shared.ErrForbidden, actor.Role)
	}
	return s.repo.List(ctx)
}

// SetStatus activates or deactivates an account.
func (s *Service) SetStatus(ctx context.Context, actor shared.Actor, id int64, status Status) error {
	if !shared.Allows(actor.Role, shared.OpUserManage) {
		return fmt.Errorf("%w: role %s cannot manage users", shared.ErrForbidden, actor.Role)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "user.set_status",
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     map[string]any{"status": status},
	}); err != nil {
		s.logger.Warn("audit user.set_status", slog.Any("error", err))
	}
	return nil
}
