package chatclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between polls
const DefaultInterval = 4 * time.Second

// Update describes what one poll changed
type Update struct {
	NewMessages   []domain.Message
	UnreadCounts  map[uuid.UUID]int
	OnlineStatus  map[uuid.UUID]bool
	Conversations []domain.Conversation // nil unless refetched
}

// Poller keeps a local view of the signed-in attendee's messages in sync by
// short polling. It stores the server timestamp of each poll as the next
// since, merges messages by id and only refetches conversations when a poll
// brought new messages.
type Poller struct {
	client   *Client
	selfID   uuid.UUID
	interval time.Duration
	onUpdate func(Update)

	mu            sync.Mutex
	since         *time.Time
	messages      []domain.Message
	index         map[uuid.UUID]int
	pending       map[uuid.UUID]bool
	unread        map[uuid.UUID]int
	online        map[uuid.UUID]bool
	conversations []domain.Conversation
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithInterval sets the poll interval
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OnUpdate registers a callback run after every successful poll that changed something
func OnUpdate(fn func(Update)) PollerOption {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// NewPoller creates a poller for the attendee selfID
func NewPoller(client *Client, selfID uuid.UUID, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		selfID:   selfID,
		interval: DefaultInterval,
		index:    make(map[uuid.UUID]int),
		pending:  make(map[uuid.UUID]bool),
		unread:   make(map[uuid.UUID]int),
		online:   make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is done. Failed polls are logged and retried on the
// next tick with the same since.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsUnauthorized(err) {
				return err
			}
			log.Warn().Err(err).Msg("Poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce runs one poll and merges the result into the local state
func (p *Poller) PollOnce(ctx context.Context) (*Update, error) {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	result, err := p.client.Poll(ctx, since)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	ts := result.Timestamp
	p.since = &ts
	added := p.mergeLocked(result.Messages)
	p.unread = result.UnreadCounts
	if p.unread == nil {
		p.unread = make(map[uuid.UUID]int)
	}
	for id, online := range result.OnlineStatus {
		p.online[id] = online
	}
	p.mu.Unlock()

	update := Update{
		NewMessages:  added,
		UnreadCounts: copyCounts(result.UnreadCounts),
		OnlineStatus: result.OnlineStatus,
	}

	if len(added) > 0 {
		conversations, err := p.client.Conversations(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to refresh conversations")
		} else {
			p.mu.Lock()
			p.conversations = conversations
			p.mu.Unlock()
			update.Conversations = conversations
		}
	}

	if p.onUpdate != nil && (len(added) > 0 || len(result.OnlineStatus) > 0) {
		p.onUpdate(update)
	}

	return &update, nil
}

// mergeLocked inserts messages not seen before, replaces known ones and keeps
// the list ordered by CreatedAt. It returns the messages that were new.
func (p *Poller) mergeLocked(incoming []domain.Message) []domain.Message {
	var added []domain.Message
	for _, msg := range incoming {
		if i, ok := p.index[msg.ID]; ok {
			p.messages[i] = msg
			continue
		}
		p.messages = append(p.messages, msg)
		p.index[msg.ID] = len(p.messages) - 1
		added = append(added, msg)
	}
	if len(added) > 0 {
		p.sortLocked()
	}
	return added
}

func (p *Poller) sortLocked() {
	sort.SliceStable(p.messages, func(i, j int) bool {
		return p.messages[i].CreatedAt.Before(p.messages[j].CreatedAt)
	})
	p.reindexLocked()
}

func (p *Poller) reindexLocked() {
	p.index = make(map[uuid.UUID]int, len(p.messages))
	for i := range p.messages {
		p.index[p.messages[i].ID] = i
	}
}

func (p *Poller) removeLocked(id uuid.UUID) {
	i, ok := p.index[id]
	if !ok {
		return
	}
	p.messages = append(p.messages[:i], p.messages[i+1:]...)
	p.reindexLocked()
}

// SendOptimistic shows the message locally right away, then sends it. On
// failure the local copy is removed and the error returned; on success it is
// replaced by the stored message.
func (p *Poller) SendOptimistic(ctx context.Context, receiverID uuid.UUID, content string) (*domain.Message, error) {
	tempID := uuid.New()
	p.mu.Lock()
	p.messages = append(p.messages, domain.Message{
		ID:         tempID,
		SenderID:   p.selfID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	})
	p.index[tempID] = len(p.messages) - 1
	p.pending[tempID] = true
	p.mu.Unlock()

	msg, err := p.client.Send(ctx, receiverID, content)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, tempID)
	p.removeLocked(tempID)
	if err != nil {
		return nil, err
	}
	p.mergeLocked([]domain.Message{*msg})
	return msg, nil
}

// Messages returns the local messages, oldest first
func (p *Poller) Messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Thread returns the local messages exchanged with partnerID, oldest first
func (p *Poller) Thread(partnerID uuid.UUID) []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Message
	for _, m := range p.messages {
		if m.PartnerOf(p.selfID) == partnerID {
			out = append(out, m)
		}
	}
	return out
}

// IsPending reports whether id is an optimistic message still in flight
func (p *Poller) IsPending(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[id]
}

// Since returns the timestamp the next poll will send
func (p *Poller) Since() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.since == nil {
		return nil
	}
	t := *p.since
	return &t
}

// UnreadCounts returns the latest unread count per sender
func (p *Poller) UnreadCounts() map[uuid.UUID]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyCounts(p.unread)
}

// IsOnline returns the last known presence of id
func (p *Poller) IsOnline(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

// Conversations returns the last fetched conversation list
func (p *Poller) Conversations() []domain.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conversations
}

func copyCounts(in map[uuid.UUID]int) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
