package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/registry"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

const lockStripes = 64

// Send failure reasons reported to metrics.
const (
	reasonEmpty       = "empty_message"
	reasonNoRecipient = "unknown_recipient"
	reasonCancelled   = "cancelled"
	reasonPersistence = "persistence"
)

// PairChannel is the event channel the recipient's conversation with sender
// listens on. The key is the recipient's view of the pair, so the two
// directions of one conversation use different keys.
func PairChannel(recipientID, senderID string) string {
	return recipientID + "-" + senderID
}

// PersonalChannel carries a user's own messages to their other connections.
func PersonalChannel(userID string) string {
	return "personal-channel-" + userID
}

// ChatService persists messages and fans them out to live channels.
//
// Sends to one conversation are serialized, so the stored order, the
// timestamps and the delivery order to each channel agree.
type ChatService struct {
	repomanager repomanager.RepositoryManager
	registry    *registry.Registry
	metrics     *metrics.Metrics
	logger      logging.Logger

	locks [lockStripes]sync.Mutex
	clock monotonicClock
}

func NewChatService(m repomanager.RepositoryManager, r *registry.Registry, mt *metrics.Metrics, l logging.Logger) *ChatService {
	return &ChatService{
		repomanager: m,
		registry:    r,
		metrics:     mt,
		logger:      l.With("module", "chat"),
	}
}

// Send stores a message from sender to recipientID and pushes it to the
// recipient's channels and to the sender's channels other than originHandle.
// Nothing is pushed unless the message was stored.
func (s *ChatService) Send(ctx context.Context, sender *auth.Claims, recipientID, text, originHandle string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		s.metrics.RecordSendFailure(reasonEmpty)
		return nil, common.ErrEmptyMessage
	}
	if recipientID == "" {
		s.metrics.RecordSendFailure(reasonNoRecipient)
		return nil, fmt.Errorf("%w: recipient is required", common.ErrorValidation)
	}

	if recipientID != sender.UserID {
		if _, err := s.repomanager.Users().GetUserByID(ctx, recipientID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.metrics.RecordSendFailure(reasonNoRecipient)
				return nil, common.ErrorNotFound
			}
			return nil, fmt.Errorf("error searching recipient: %w", err)
		}
	}

	key := models.ConversationKey(sender.UserID, recipientID)
	stripe := stripeFor(key)
	s.locks[stripe].Lock()
	defer s.locks[stripe].Unlock()

	if err := ctx.Err(); err != nil {
		s.metrics.RecordSendFailure(reasonCancelled)
		return nil, err
	}

	msg := &models.Message{
		From:      sender.UserID,
		To:        recipientID,
		Text:      text,
		CreatedAt: s.clock.Next(stripe),
	}

	stored, err := s.repomanager.Messages().Append(ctx, msg)
	if err != nil {
		s.metrics.RecordSendFailure(reasonPersistence)
		s.logger.Error(ctx, "append failed", "from", msg.From, "to", msg.To, "error", err)
		return nil, persistenceError(err)
	}
	s.metrics.RecordMessageSent()

	s.fanOut(ctx, stored, originHandle)

	return stored, nil
}

// History returns the conversation between a and b, oldest first.
func (s *ChatService) History(ctx context.Context, a, b string) ([]*models.Message, error) {
	msgs, err := s.repomanager.Messages().History(ctx, a, b)
	if err != nil {
		return nil, persistenceError(err)
	}
	return msgs, nil
}

func (s *ChatService) fanOut(ctx context.Context, msg *models.Message, originHandle string) {
	if msg.To != msg.From {
		ev := registry.Event{Channel: PairChannel(msg.To, msg.From), Message: msg}
		for _, ch := range s.registry.ChannelsFor(msg.To) {
			s.push(ctx, ch, ev)
		}
	}

	ev := registry.Event{Channel: PersonalChannel(msg.From), Message: msg}
	for _, ch := range s.registry.ChannelsFor(msg.From) {
		if ch.ID() == originHandle {
			continue
		}
		s.push(ctx, ch, ev)
	}
}

// push delivers ev or drops the channel. A dropped client re-syncs from
// history when it reconnects.
func (s *ChatService) push(ctx context.Context, ch registry.Channel, ev registry.Event) {
	if err := ch.Push(ev); err != nil {
		s.metrics.RecordPush(metrics.PushFailed)
		s.logger.Warn(ctx, "push failed, closing channel", "handle", ch.ID(), "channel", ev.Channel, "error", err)
		s.registry.Unbind(ch.ID())
		ch.Close()
		return
	}
	s.metrics.RecordPush(metrics.PushDelivered)
}

func stripeFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

func persistenceError(err error) error {
	if errors.Is(err, common.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrPersistence, err)
}

// monotonicClock hands out timestamps that strictly increase per lock
// stripe, and so per conversation. Resolution is one millisecond, the
// precision of BSON dates, so stored and returned timestamps agree on every
// backend. Callers hold the stripe's lock.
type monotonicClock struct {
	last [lockStripes]time.Time
	now  func() time.Time
}

func (c *monotonicClock) Next(stripe int) time.Time {
	now := time.Now
	if c.now != nil {
		now = c.now
	}

	t := now().UTC().Truncate(time.Millisecond)
	if last := c.last[stripe]; !t.After(last) {
		t = last.Add(time.Millisecond)
	}
	c.last[stripe] = t
	return t
}
