package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It is used for local
// development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}

	stored := *user
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID

	user.ID = stored.ID
	user.CreatedAt = stored.CreatedAt
	return user, nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) List(ctx context.Context, f ListFilter) ([]*models.User, int, error) {
	q := strings.ToLower(f.Query)

	r.mu.RLock()
	matched := make([]*models.User, 0, len(r.byID))
	for id, u := range r.byID {
		if id == f.ExcludeID {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(u.FirstName), q) &&
			!strings.Contains(strings.ToLower(u.LastName), q) &&
			!strings.Contains(u.Email, q) {
			continue
		}
		c := *u
		c.PasswordHash = nil
		matched = append(matched, &c)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []*models.User{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}
