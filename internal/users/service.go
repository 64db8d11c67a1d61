package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service manages fund member profiles.
type Service interface {
	EnsureProfile(ctx context.Context, input EnsureProfileInput) (*UserDTO, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	List(ctx context.Context) ([]UserDTO, error)
	ListActive(ctx context.Context) ([]UserDTO, error)
	SetStatus(ctx context.Context, id uuid.UUID, input SetStatusInput) (*UserDTO, error)
}

type service struct {
	repo Repository
	tx   db.TxRunner
}

// NewService constructs the user directory service.
func NewService(repo Repository, tx db.TxRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// EnsureProfile returns the existing profile for the email or creates one.
// The first profile created while no admin exists becomes an active admin;
// everyone after that starts inactive until an admin enables them.
func (s *service) EnsureProfile(ctx context.Context, input EnsureProfileInput) (*UserDTO, bool, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if name == "" {
		name = email
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return FromModel(existing), false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user by email")
	}

	var created *models.User
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		admins, err := txRepo.CountAdmins(ctx)
		if err != nil {
			return err
		}
		bootstrap := admins == 0
		user := &models.User{
			ID:       uuid.New(),
			Email:    email,
			Name:     name,
			PhotoURL: input.PhotoURL,
			IsAdmin:  bootstrap,
			IsActive: bootstrap,
			Balance:  decimal.Zero,
		}
		if err := txRepo.Create(ctx, user); err != nil {
			return err
		}
		created = user
		return nil
	}); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already exists")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create user")
	}
	return FromModel(created), true, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "user")
	}
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context) ([]UserDTO, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	return FromModels(list), nil
}

func (s *service) ListActive(ctx context.Context) ([]UserDTO, error) {
	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active users")
	}
	return FromModels(list), nil
}

// SetStatus flips the active/admin flags. Balances are untouched; a member
// leaving the active set simply stops taking part in compensations.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, input SetStatusInput) (*UserDTO, error) {
	fields := map[string]any{}
	if input.IsActive != nil {
		fields["is_active"] = *input.IsActive
	}
	if input.IsAdmin != nil {
		fields["is_admin"] = *input.IsAdmin
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "is_active or is_admin is required")
	}
	if err := s.repo.UpdateStatus(ctx, id, fields); err != nil {
		return nil, mapLookupError(err, "user")
	}
	return s.Get(ctx, id)
}

func mapLookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
