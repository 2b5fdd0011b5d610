// Package users stores registered accounts. PostgreSQL, MongoDB and
// in-memory implementations share the Repository contract.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// ListFilter selects a page of users for the directory listing.
type ListFilter struct {
	// ExcludeID is left out of the result (the caller).
	ExcludeID string
	// Query is a case-insensitive substring matched against first name,
	// last name and email. Empty matches everyone.
	Query  string
	Offset int
	Limit  int
}

type Repository interface {
	// Create stores user and fills in its ID. A duplicate email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// List returns one page of matching users and the total number of matches.
	List(ctx context.Context, f ListFilter) ([]*models.User, int, error)
}
