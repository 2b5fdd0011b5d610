package models

import (
	"strconv"
	"strings"
	"time"
)

// Message is a single direct message. Messages are immutable once stored.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationKey returns the storage key of the conversation between a and
// b. The key does not depend on argument order. The first id is length
// prefixed, so ids containing the separator cannot collide.
func ConversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}
