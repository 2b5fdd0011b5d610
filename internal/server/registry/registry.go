// Package registry tracks which live channels belong to which identity.
package registry

import (
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// Event is a frame pushed to a live channel.
type Event struct {
	Channel      string          `json:"channel"`
	Message      *models.Message `json:"message,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Channel is a live push connection. Push must not block; it fails when the
// channel cannot accept the event. Close is idempotent.
type Channel interface {
	ID() string
	Push(Event) error
	Close()
}

// Registry maps identities to their bound channels. Each channel handle is
// bound to at most one identity.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[string]Channel
	owner      map[string]string
	metrics    *metrics.Metrics
}

func New(m *metrics.Metrics) *Registry {
	return &Registry{
		byIdentity: make(map[string]map[string]Channel),
		owner:      make(map[string]string),
		metrics:    m,
	}
}

// Bind associates ch with identityID. Binding a handle that is already
// bound moves it to the new identity.
func (r *Registry) Bind(identityID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(ch.ID())

	chans, ok := r.byIdentity[identityID]
	if !ok {
		chans = make(map[string]Channel)
		r.byIdentity[identityID] = chans
	}
	chans[ch.ID()] = ch
	r.owner[ch.ID()] = identityID
	r.metrics.SetBindings(len(r.owner))
}

// Unbind removes the handle. Unknown handles are ignored.
func (r *Registry) Unbind(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removeLocked(handleID) {
		r.metrics.SetBindings(len(r.owner))
	}
}

func (r *Registry) removeLocked(handleID string) bool {
	identityID, ok := r.owner[handleID]
	if !ok {
		return false
	}
	delete(r.owner, handleID)

	chans := r.byIdentity[identityID]
	delete(chans, handleID)
	if len(chans) == 0 {
		delete(r.byIdentity, identityID)
	}
	return true
}

// ChannelsFor returns a snapshot of the channels bound to identityID. The
// result is empty when the identity is offline.
func (r *Registry) ChannelsFor(identityID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chans := r.byIdentity[identityID]
	result := make([]Channel, 0, len(chans))
	for _, ch := range chans {
		result = append(result, ch)
	}
	return result
}

// UnbindIdentity removes every binding of identityID and returns the
// removed channels. Closing them is up to the caller.
func (r *Registry) UnbindIdentity(identityID string) []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	chans := r.byIdentity[identityID]
	result := make([]Channel, 0, len(chans))
	for id, ch := range chans {
		delete(r.owner, id)
		result = append(result, ch)
	}
	delete(r.byIdentity, identityID)
	r.metrics.SetBindings(len(r.owner))
	return result
}

// UnbindAll empties the registry and returns every channel it held.
func (r *Registry) UnbindAll() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Channel, 0, len(r.owner))
	for _, chans := range r.byIdentity {
		for _, ch := range chans {
			result = append(result, ch)
		}
	}
	r.byIdentity = make(map[string]map[string]Channel)
	r.owner = make(map[string]string)
	r.metrics.SetBindings(0)
	return result
}

// Count returns the number of bound channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}
