package identity

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/buildledger/buildledger/internal/shared"
)

type fakeRepo struct {
	nextID int64
	users  map[int64]User
	hashes map[int64]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, users: map[int64]User{}, hashes: map[int64]string{}}
}

func (f *fakeRepo) Insert(_ context.Context, input NewUser, hash string) (User, error) {
	for _, u := range f.users {
		if u.Email == input.Email {
			return User{}, fmt.Errorf("%w: email already registered", shared.ErrConflict)
		}
	}
	u := User{
		ID:     f.nextID,
		Name:   input.Name,
		Email:  input.Email,
		Phone:  input.Phone,
		Role:   input.Role,
		Status: StatusActive,
	}
	f.users[u.ID] = u
	f.hashes[u.ID] = hash
	f.nextID++
	return u, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, nil
}

func (f *fakeRepo) List(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id int64, status Status) error {
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	u.Status = status
	f.users[id] = u
	return nil
}

type fakeAuditor struct {
	logs []shared.AuditLog
}

func (f *fakeAuditor) Record(_ context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeAuditor) {
	repo := newFakeRepo()
	audit := &fakeAuditor{}
	svc := NewService(slog.Default(), repo, audit)
	return svc, repo, audit
}

func TestProvisionHashesPasswordAndAudits(t *testing.T) {
	svc, repo, audit := newTestService()
	admin := shared.Actor{ID: 1, Role: shared.RoleSuperadmin}

	user, err := svc.Provision(context.Background(), admin, NewUser{
		Name:     "Ravi Kumar",
		Email:    "Ravi@Example.com",
		Role:     shared.RoleSupervisor,
		Password: "supersecret",
	})
	require.NoError(t, err)
	require.Equal(t, "ravi@example.com", user.Email)
	require.Equal(t, StatusActive, user.Status)

	hash := repo.hashes[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("supersecret")))

	require.Len(t, audit.logs, 1)
	require.Equal(t, "user.provision", audit.logs[0].Action)
}

func TestProvisionRejectsNonSuperadmin(t *testing.T) {
	svc, _, _ := newTestService()
	actor := shared.Actor{ID: 2, Role: shared.RoleProcurement}

	_, err := svc.Provision(context.Background(), actor, NewUser{
		Name:     "X",
		Email:    "x@example.com",
		Role:     shared.RoleAccountant,
		Password: "supersecret",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestProvisionValidation(t *testing.T) {
	svc, _, _ := newTestService()
	admin := shared.Actor{ID: 1, Role: shared.RoleSuperadmin}

	_, err := svc.Provision(context.Background(), admin, NewUser{
		Name: "No Email", Role: shared.RoleAccountant, Password: "supersecret",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Provision(context.Background(), admin, NewUser{
		Name: "Bad Role", Email: "b@example.com", Role: "manager", Password: "supersecret",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Provision(context.Background(), admin, NewUser{
		Name: "Short", Email: "s@example.com", Role: shared.RoleAccountant, Password: "short",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProvisionDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	admin := shared.Actor{ID: 1, Role: shared.RoleSuperadmin}

	input := NewUser{Name: "A", Email: "dup@example.com", Role: shared.RoleAccountant, Password: "supersecret"}
	_, err := svc.Provision(context.Background(), admin, input)
	require.NoError(t, err)

	_, err = svc.Provision(context.Background(), admin, input)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSetStatusDeactivatesAccount(t *testing.T) {
	svc, repo, _ := newTestService()
	admin := shared.Actor{ID: 1, Role: shared.RoleSuperadmin}

	user, err := svc.Provision(context.Background(), admin, NewUser{
		Name: "B", Email: "b@example.com", Role: shared.RoleSupervisor, Password: "supersecret",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(context.Background(), admin, user.ID, StatusInactive))
	require.Equal(t, StatusInactive, repo.users[user.ID].Status)

	err = svc.SetStatus(context.Background(), admin, user.ID, Status("suspended"))
	require.ErrorIs(t, err, shared.ErrValidation)
}
