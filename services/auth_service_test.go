package services

import (
	"context"
	"testing"

	"github.com/cs2platform/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	service := NewAuthService(newFakeUserRepo())

	user, err := service.Register(context.Background(), RegisterInput{
		Nickname: "s1mple",
		Email:    "s1mple@example.com",
		Password: "secret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer, user.Role)
	assert.Empty(t, user.PasswordHash, "hash must not leak out of the service")

	loggedIn, err := service.Login(context.Background(), LoginInput{
		Email:    "s1mple@example.com",
		Password: "secret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.Empty(t, loggedIn.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service := NewAuthService(newFakeUserRepo())

	_, err := service.Register(context.Background(), RegisterInput{
		Nickname: "first",
		Email:    "taken@example.com",
		Password: "pass-one",
	})
	require.NoError(t, err)

	_, err = service.Register(context.Background(), RegisterInput{
		Nickname: "second",
		Email:    "taken@example.com",
		Password: "pass-two",
	})
	assert.ErrorIs(t, err, ErrAuthEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	service := NewAuthService(newFakeUserRepo())

	_, err := service.Register(context.Background(), RegisterInput{
		Nickname: "player",
		Email:    "player@example.com",
		Password: "right-pass",
	})
	require.NoError(t, err)

	_, err = service.Login(context.Background(), LoginInput{
		Email:    "player@example.com",
		Password: "wrong-pass",
	})
	assert.ErrorIs(t, err, ErrAuthInvalidCredentials)

	_, err = service.Login(context.Background(), LoginInput{
		Email:    "ghost@example.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, ErrAuthInvalidCredentials)
}
