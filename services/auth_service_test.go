package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct{ store *memStore }

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	for _, u := range r.store.users {
		if u.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	user.ID = r.store.id()
	user.CreatedAt = r.store.tick()
	copied := *user
	r.store.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	u, ok := r.store.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.store.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) Count(ctx context.Context) (int, error) {
	return len(r.store.users), nil
}

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore()
	svc := NewAuthService(&fakeUserRepo{store: store})

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     "  Alice  ",
		Email:    "Alice@Example.COM ",
		Password: "correct horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleOrganizer, user.Role)
	assert.Empty(t, user.PasswordHash, "hash never leaves the service")

	// Хэш в хранилище при этом лежит и это не сам пароль.
	stored := store.users[user.ID]
	require.NotEmpty(t, stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))

	logged, err := svc.Login(context.Background(), LoginInput{
		Email:    " ALICE@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
	assert.Empty(t, logged.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{store: newMemStore()})

	input := RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "correct horse"}
	_, err := svc.Register(context.Background(), input)
	require.NoError(t, err)

	input.Name = "Another Alice"
	_, err = svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrUserEmailExists)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{store: newMemStore()})
	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Alice", Email: "alice@example.com", Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Несуществующий адрес неотличим от неверного пароля.
	_, err = svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
