package memory

import (
	"context"
	"fmt"

	"examforge/internal/common"
	"examforge/internal/domain/model"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	defer r.s.lock(ctx)()
	for _, u := range r.s.data.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("account with given username or email already exists: %w", common.ErrConflict)
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(ctx, func(u model.User) bool { return u.Email == email })
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(ctx, func(u model.User) bool { return u.Username == username })
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, func(u model.User) bool { return u.ID == id })
}

func (r *userRepo) find(ctx context.Context, match func(model.User) bool) (*model.User, error) {
	defer r.s.lock(ctx)()
	for _, u := range r.s.data.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("account: %w", common.ErrNotFound)
}
