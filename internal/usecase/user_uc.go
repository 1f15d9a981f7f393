package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/model"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase keeps the profile documents in sync with the identity provider.
type UserUseCase interface {
	// EnsureProfile creates users/{id} on first sign-in and refreshes
	// email/name afterwards. The subscription field is never touched.
	EnsureProfile(ctx context.Context, id *model.Identity) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	// Watch calls fn with the user's profile now and after each change until
	// the returned function is called. fn receives nil for a missing profile.
	Watch(ctx context.Context, userID string, fn func(*model.User)) (func(), error)
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	docs repository.DocumentStore
	log  *zerolog.Logger
}

func NewUserUseCase(docs repository.DocumentStore, logger *zerolog.Logger) *userUC {
	return &userUC{
		docs: docs,
		log:  logger,
	}
}

func (u *userUC) EnsureProfile(ctx context.Context, id *model.Identity) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.EnsureProfile")()
	if id == nil || id.ID == "" {
		return nil, domain.ErrInvalidArgument
	}

	usr, err := u.Get(ctx, id.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if usr == nil {
		nu, err := model.NewUser(id.ID, id.Email, id.Name)
		if err != nil {
			return nil, err
		}
		err = u.docs.MergeUpdate(ctx, model.UserPath(id.ID), repository.Document{
			"id":        nu.ID,
			"email":     nu.Email,
			"name":      nu.Name,
			"createdAt": nu.CreatedAt,
		})
		if err != nil {
			u.log.Error().Err(err).Str("user_id", id.ID).Msg("Failed to create user profile")
			return nil, err
		}
		u.log.Info().Str("user_id", id.ID).Msg("user profile created")
		return nu, nil
	}

	changed := repository.Document{}
	if id.Email != "" && id.Email != usr.Email {
		changed["email"] = id.Email
		usr.Email = id.Email
	}
	if id.Name != "" && id.Name != usr.Name {
		changed["name"] = id.Name
		usr.Name = id.Name
	}
	if len(changed) > 0 {
		if err := u.docs.MergeUpdate(ctx, model.UserPath(id.ID), changed); err != nil {
			u.log.Error().Err(err).Str("user_id", id.ID).Msg("Failed to update user profile")
			return nil, err
		}
	}
	return usr, nil
}

func (u *userUC) Get(ctx context.Context, userID string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	doc, err := u.docs.Get(ctx, model.UserPath(userID))
	if err != nil {
		return nil, err
	}
	return decodeUser(userID, doc)
}

func (u *userUC) Watch(ctx context.Context, userID string, fn func(*model.User)) (func(), error) {
	return u.docs.Subscribe(ctx, model.UserPath(userID), func(doc repository.Document) {
		if doc == nil {
			fn(nil)
			return
		}
		usr, err := decodeUser(userID, doc)
		if err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("undecodable user document")
			return
		}
		fn(usr)
	})
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.Count")()
	users, err := u.docs.List(ctx, "users")
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func decodeUser(userID string, doc repository.Document) (*model.User, error) {
	var usr model.User
	if err := fromDocument(doc, &usr); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	if usr.ID == "" {
		usr.ID = userID
	}
	return &usr, nil
}
