package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"chatcore/internal/cerrors"
	"chatcore/internal/config"
	"chatcore/internal/models"
	"chatcore/internal/recordstore"
)

// Service handles account registration and login. Registration writes
// the credential record and the user record in one transaction, so an
// email can never point at a user that does not exist.
type Service interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
}

type service struct {
	store   *recordstore.Store
	authCfg config.AuthConfig
}

// NewService creates the account service over the record store.
func NewService(store *recordstore.Store, authCfg config.AuthConfig) Service {
	return &service{store: store, authCfg: authCfg}
}

// Register creates a credential and its user record. ConflictError if
// the email is already registered.
func (s *service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, cerrors.Validationf("name, email and password must not be empty")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	userID := uuid.NewString()
	user := &models.User{
		Base:         models.Base{ID: userID},
		Name:         name,
		Friends:      []string{},
		Blocked:      []string{},
		Rooms:        []string{},
		UnreadCounts: map[string]int64{},
	}
	cred := &models.Credential{UserID: userID, Email: email, PasswordHash: hash}

	credKey := models.CredentialKey(email)
	userKey := models.UserKey(userID)
	err = s.store.Transact(ctx, []string{credKey, userKey}, func(tx *recordstore.Tx) error {
		if tx.Exists(credKey) {
			return cerrors.Conflictf("email %s is already registered", email)
		}
		user.Touch(tx.Now())
		if err := tx.Put(credKey, cred); err != nil {
			return err
		}
		return tx.Put(userKey, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the password and issues a JWT. An unknown email and a
// wrong password produce the same UnauthorizedError so login failures
// do not reveal which emails exist.
func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, cerrors.Validationf("email and password must not be empty")
	}

	var cred models.Credential
	if err := s.store.GetJSON(ctx, models.CredentialKey(email), &cred); err != nil {
		if errors.Is(err, cerrors.ErrNotFound) {
			return "", nil, cerrors.Unauthorizedf("invalid email or password")
		}
		return "", nil, err
	}
	if !CheckPasswordHash(password, cred.PasswordHash) {
		return "", nil, cerrors.Unauthorizedf("invalid email or password")
	}

	var user models.User
	if err := s.store.GetJSON(ctx, models.UserKey(cred.UserID), &user); err != nil {
		return "", nil, err
	}

	token, err := GenerateToken(user.ID, user.Name, s.authCfg)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
