// Package services contains server-side business logic. UserService handles
// accounts and credentials; ChatService routes direct messages.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// UserPage is one page of the user directory.
type UserPage struct {
	Users    []*models.User
	Total    int
	Page     int
	Limit    int
	AllUsers bool
}

type UserService struct {
	repomanager repomanager.RepositoryManager
	verifier    *auth.Verifier
	bcryptCost  int
}

func NewUserService(m repomanager.RepositoryManager, v *auth.Verifier, cfg *config.Config) *UserService {
	return &UserService{
		repomanager: m,
		verifier:    v,
		bcryptCost:  cfg.BcryptCost,
	}
}

// Register creates an account. All fields are required; the email is
// stored lower-cased.
func (s *UserService) Register(ctx context.Context, firstName, lastName, email, password string) (*models.User, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = normalizeEmail(email)

	if firstName == "" || lastName == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: required parameter missing", common.ErrorValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
		}
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
	}

	user, err = s.repomanager.Users().Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return user, nil
}

// Login checks the password and issues a credential. Unknown emails yield
// common.ErrorNotFound, wrong passwords common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: required parameter missing", common.ErrorValidation)
	}

	user, err := s.repomanager.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorNotFound
		}
		return nil, "", fmt.Errorf("error searching user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, "", common.ErrorUnauthorized
	}

	token, err := s.verifier.Issue(user)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	return user, token, nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}

// List returns everyone except selfID matching query, one page at a time.
// AllUsers reports that the whole matching set fit into the page.
func (s *UserService) List(ctx context.Context, selfID, query string, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	found, total, err := s.repomanager.Users().List(ctx, users.ListFilter{
		ExcludeID: selfID,
		Query:     strings.TrimSpace(query),
		Offset:    (page - 1) * limit,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	return &UserPage{
		Users:    found,
		Total:    total,
		Page:     page,
		Limit:    limit,
		AllUsers: total <= limit,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
