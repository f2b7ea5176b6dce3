package service

import (
	"context"
	"fmt"

	"accounts_api/internal/common"
	"accounts_api/internal/domain/model"
	"accounts_api/internal/domain/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`      // admin only
	IsActive *bool   `json:"is_active,omitempty"` // admin only
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = ""
	return user, nil
}

func (s *UserService) List(ctx context.Context, page, pageSize int) ([]*model.User, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	users, err := s.userRepo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.HashedPassword = ""
	}
	return users, nil
}

// Update applies a partial profile update. Role and active-flag changes
// require an admin actor; identity fields re-enter uniqueness checks at
// the store.
func (s *UserService) Update(ctx context.Context, targetID, actorRole string, req UpdateUserRequest) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if (req.Role != nil || req.IsActive != nil) && actorRole != model.RoleAdmin {
		return nil, fmt.Errorf("role and active status are admin-managed: %w", common.ErrForbidden)
	}

	if req.Username != nil || req.Email != nil {
		username := user.Username
		email := user.Email
		if req.Username != nil {
			if !usernameRe.MatchString(*req.Username) {
				return nil, fmt.Errorf("%w: username must be 3-30 characters of letters, digits or underscore", common.ErrValidation)
			}
			username = *req.Username
		}
		if req.Email != nil {
			if !emailRe.MatchString(*req.Email) {
				return nil, fmt.Errorf("%w: email address is not valid", common.ErrValidation)
			}
			email = *req.Email
		}
		if err := s.userRepo.UpdateProfile(ctx, targetID, username, email); err != nil {
			return nil, err
		}
	}

	if req.Role != nil {
		if *req.Role != model.RoleUser && *req.Role != model.RoleAdmin {
			return nil, fmt.Errorf("%w: role must be %q or %q", common.ErrValidation, model.RoleUser, model.RoleAdmin)
		}
		if err := s.userRepo.SetRole(ctx, targetID, *req.Role); err != nil {
			return nil, err
		}
	}

	if req.IsActive != nil {
		if err := s.userRepo.SetActive(ctx, targetID, *req.IsActive); err != nil {
			return nil, err
		}
	}

	return s.GetByID(ctx, targetID)
}

// Deactivate retires an account. There is no hard delete; a deactivated
// user fails the middleware's live check on their next request.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	return s.userRepo.SetActive(ctx, id, false)
}
