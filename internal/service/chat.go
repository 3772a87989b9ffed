package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ChatService handles direct messages, conversations, polling and attendee search
type ChatService struct {
	registrations domain.RegistrationRepository
	messages      domain.MessageRepository
	sessions      domain.SessionRepository
	runner        TaskRunner
	cfg           config.ChatConfig
	now           func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	registrations domain.RegistrationRepository,
	messages domain.MessageRepository,
	sessions domain.SessionRepository,
	runner TaskRunner,
	cfg config.ChatConfig,
) *ChatService {
	return &ChatService{
		registrations: registrations,
		messages:      messages,
		sessions:      sessions,
		runner:        runner,
		cfg:           cfg,
		now:           clock,
	}
}

// Send stores a message from senderID. All validation happens before the insert.
func (s *ChatService) Send(ctx context.Context, senderID uuid.UUID, req domain.SendMessageRequest) (*domain.Message, error) {
	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		return nil, domain.ErrValidation("Invalid receiver id")
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, domain.ErrValidation("Message content is required")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return nil, domain.ErrValidation("Message is too long (max %d characters)", s.cfg.MaxContentLength)
	}
	if receiverID == senderID {
		return nil, domain.ErrValidation("Cannot send a message to yourself")
	}

	receiver, err := s.registrations.GetByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receiver: %w", err)
	}
	if receiver == nil {
		return nil, domain.ErrNotFound("Recipient not found")
	}

	msg := &domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrValidation("Message could not be saved, please retry")
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

// History returns one page of the conversation between callerID and partnerID,
// oldest first. Reading the conversation marks the partner's messages read in
// the background.
func (s *ChatService) History(ctx context.Context, callerID, partnerID uuid.UUID, before *time.Time, limit int) (*domain.History, error) {
	limit = s.historyLimit(limit)

	messages, err := s.messages.ListBetween(ctx, callerID, partnerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	readAt := s.now()
	s.runner.Go("messages.mark_read", func(ctx context.Context) error {
		n, err := s.messages.MarkRead(ctx, partnerID, callerID, readAt)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Debug().
				Str("reader", callerID.String()).
				Str("sender", partnerID.String()).
				Int64("count", n).
				Msg("Messages marked read")
		}
		return nil
	})

	return &domain.History{
		Messages: messages,
		HasMore:  len(messages) == limit,
	}, nil
}

func (s *ChatService) historyLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.HistoryLimit
	}
	if limit > s.cfg.HistoryMaxLimit {
		return s.cfg.HistoryMaxLimit
	}
	return limit
}

// Conversations returns one summary per partner of callerID, most recent
// activity first. Partners without a registration are left out.
func (s *ChatService) Conversations(ctx context.Context, callerID uuid.UUID) ([]domain.Conversation, error) {
	latest, err := s.messages.LatestPerPartner(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest messages: %w", err)
	}
	if len(latest) == 0 {
		return []domain.Conversation{}, nil
	}

	partnerIDs := make([]uuid.UUID, len(latest))
	for i := range latest {
		partnerIDs[i] = latest[i].PartnerOf(callerID)
	}

	var (
		profiles []domain.Registration
		online   map[uuid.UUID]bool
		unread   map[uuid.UUID]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.registrations.ListByIDs(gctx, partnerIDs)
		if err != nil {
			return fmt.Errorf("failed to get partners: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		online, err = s.sessions.ActiveSince(gctx, partnerIDs, s.presenceCutoff())
		if err != nil {
			return fmt.Errorf("failed to get presence: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		unread, err = s.messages.UnreadCounts(gctx, callerID, partnerIDs)
		if err != nil {
			return fmt.Errorf("failed to count unread messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*domain.Registration, len(profiles))
	for i := range profiles {
		byID[profiles[i].ID] = &profiles[i]
	}

	conversations := make([]domain.Conversation, 0, len(latest))
	for i, msg := range latest {
		partner, ok := byID[partnerIDs[i]]
		if !ok {
			continue
		}
		conversations = append(conversations, domain.Conversation{
			Partner:     partner.Summary(),
			LastMessage: msg,
			UnreadCount: unread[partner.ID],
			IsOnline:    online[partner.ID],
		})
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})

	return conversations, nil
}

// Poll returns what changed for callerID after since. A nil since looks back
// the configured lookback window. The returned Timestamp is the next since.
func (s *ChatService) Poll(ctx context.Context, callerID uuid.UUID, since *time.Time) (*domain.PollResult, error) {
	now := s.now()
	from := now.Add(-s.cfg.PollLookback)
	if since != nil {
		from = *since
	}

	messages, err := s.messages.ListSince(ctx, callerID, from, s.cfg.PollMaxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to list new messages: %w", err)
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	timestamp := now
	if len(messages) == s.cfg.PollMaxMessages {
		// Truncated page: resume just before the last delivered message so the
		// rest of its instant is not skipped. Clients dedupe by id.
		timestamp = messages[len(messages)-1].CreatedAt.Add(-time.Microsecond)
	}
	if timestamp.Before(from) {
		timestamp = from
	}

	seen := make(map[uuid.UUID]bool)
	var partnerIDs []uuid.UUID
	for i := range messages {
		p := messages[i].PartnerOf(callerID)
		if !seen[p] {
			seen[p] = true
			partnerIDs = append(partnerIDs, p)
		}
	}

	var (
		online map[uuid.UUID]bool
		unread map[uuid.UUID]int
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(partnerIDs) > 0 {
		g.Go(func() error {
			var err error
			online, err = s.sessions.ActiveSince(gctx, partnerIDs, now.Add(-s.cfg.PresenceWindow))
			if err != nil {
				return fmt.Errorf("failed to get presence: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		unread, err = s.messages.UnreadCounts(gctx, callerID, nil)
		if err != nil {
			return fmt.Errorf("failed to count unread messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status := make(map[uuid.UUID]bool, len(partnerIDs))
	for _, id := range partnerIDs {
		status[id] = online[id]
	}
	if unread == nil {
		unread = map[uuid.UUID]int{}
	}

	return &domain.PollResult{
		Messages:     messages,
		UnreadCounts: unread,
		OnlineStatus: status,
		Timestamp:    timestamp,
	}, nil
}

// SearchAttendees lists other attendees matching query by name, organization or title
func (s *ChatService) SearchAttendees(ctx context.Context, callerID uuid.UUID, query string) ([]domain.Attendee, error) {
	regs, err := s.registrations.Search(ctx, strings.TrimSpace(query), callerID, s.cfg.AttendeeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search attendees: %w", err)
	}
	if len(regs) == 0 {
		return []domain.Attendee{}, nil
	}

	ids := make([]uuid.UUID, len(regs))
	for i := range regs {
		ids[i] = regs[i].ID
	}
	online, err := s.sessions.ActiveSince(ctx, ids, s.presenceCutoff())
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	attendees := make([]domain.Attendee, len(regs))
	for i := range regs {
		attendees[i] = domain.Attendee{
			UserSummary: regs[i].Summary(),
			IsOnline:    online[regs[i].ID],
		}
	}
	return attendees, nil
}

func (s *ChatService) presenceCutoff() time.Time {
	return s.now().Add(-s.cfg.PresenceWindow)
}
