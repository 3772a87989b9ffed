package service

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/repository/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type chatStack struct {
	ctx   context.Context
	clock *stepClock
	regs  *sqlite.RegistrationRepository
	auth  *AuthService
	chat  *ChatService
}

func newChatStack(t *testing.T) *chatStack {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	regs := sqlite.NewRegistrationRepository(db)
	sessions := sqlite.NewSessionRepository(db)
	creds := sqlite.NewCredentialRepository(db)
	messages := sqlite.NewMessageRepository(db)
	runner := &inlineRunner{}
	clock := &stepClock{t: fixedNow}

	auth := NewAuthService(regs, sessions, creds, new(MockMailer), runner, config.AuthConfig{
		SitePassword: testSitePassword,
		SessionTTL:   7 * 24 * time.Hour,
		ResetTTL:     time.Hour,
		BcryptCost:   bcrypt.DefaultCost,
		MinPassword:  4,
	}, "http://localhost/reset")
	auth.now = clock.now

	chat := NewChatService(regs, messages, sessions, runner, testChatConfig)
	chat.now = clock.now

	return &chatStack{ctx: ctx, clock: clock, regs: regs, auth: auth, chat: chat}
}

func (s *chatStack) register(t *testing.T, name, email string) *domain.Registration {
	t.Helper()
	reg := &domain.Registration{ID: uuid.New(), Name: name, Email: email, CreatedAt: fixedNow}
	require.NoError(t, s.regs.Create(s.ctx, reg))
	return reg
}

func TestChatScenario_HelloBetweenTwoAttendees(t *testing.T) {
	s := newChatStack(t)
	ctx := s.ctx

	alice := s.register(t, "Alice", "alice@example.com")
	bob := s.register(t, "Bob", "bob@example.com")

	_, err := s.auth.Login(ctx, alice.Email, testSitePassword)
	require.NoError(t, err)
	_, err = s.auth.Login(ctx, bob.Email, testSitePassword)
	require.NoError(t, err)

	beforeSend := s.clock.now()
	s.clock.advance(time.Second)

	sent, err := s.chat.Send(ctx, alice.ID, domain.SendMessageRequest{ReceiverID: bob.ID.String(), Content: "Hello"})
	require.NoError(t, err)

	// Round trip from the sender side
	h, err := s.chat.History(ctx, alice.ID, bob.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)
	assert.Equal(t, sent.ID, h.Messages[0].ID)
	assert.Equal(t, "Hello", h.Messages[0].Content)
	assert.Equal(t, alice.ID, h.Messages[0].SenderID)
	assert.Equal(t, bob.ID, h.Messages[0].ReceiverID)
	assert.False(t, h.HasMore)

	// Bob sees the message in a poll and as unread
	s.clock.advance(time.Second)
	poll, err := s.chat.Poll(ctx, bob.ID, &beforeSend)
	require.NoError(t, err)
	require.Len(t, poll.Messages, 1)
	assert.Equal(t, alice.ID, poll.Messages[0].SenderID)
	assert.Equal(t, 1, poll.UnreadCounts[alice.ID])
	assert.True(t, poll.OnlineStatus[alice.ID])

	convs, err := s.chat.Conversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)

	// Bob opens the conversation; the read receipt is written once
	s.clock.advance(time.Second)
	readTime := s.clock.now()
	_, err = s.chat.History(ctx, bob.ID, alice.ID, nil, 0)
	require.NoError(t, err)

	s.clock.advance(time.Second)
	h, err = s.chat.History(ctx, bob.ID, alice.ID, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, h.Messages[0].ReadAt)
	assert.True(t, h.Messages[0].ReadAt.Equal(readTime))

	s.clock.advance(time.Second)
	h, err = s.chat.History(ctx, bob.ID, alice.ID, nil, 0)
	require.NoError(t, err)
	assert.True(t, h.Messages[0].ReadAt.Equal(readTime), "readAt must not move on later reads")

	convs, err = s.chat.Conversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount)

	// Alice's view: Bob, nothing unread, last message Hello
	convs, err = s.chat.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, bob.ID, convs[0].Partner.ID)
	assert.Equal(t, 0, convs[0].UnreadCount)
	assert.Equal(t, "Hello", convs[0].LastMessage.Content)
}

func TestChatScenario_PresenceWindow(t *testing.T) {
	s := newChatStack(t)
	ctx := s.ctx

	alice := s.register(t, "Alice", "alice@example.com")
	bob := s.register(t, "Bob", "bob@example.com")

	_, err := s.auth.Login(ctx, alice.Email, testSitePassword)
	require.NoError(t, err)

	s.clock.advance(4 * time.Minute)
	found, err := s.chat.SearchAttendees(ctx, bob.ID, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsOnline, "heartbeat four minutes ago is online")

	s.clock.advance(2 * time.Minute)
	found, err = s.chat.SearchAttendees(ctx, bob.ID, "alice")
	require.NoError(t, err)
	assert.False(t, found[0].IsOnline, "heartbeat six minutes ago is offline")
}

func TestChatScenario_PollDeterminism(t *testing.T) {
	s := newChatStack(t)
	ctx := s.ctx

	alice := s.register(t, "Alice", "alice@example.com")
	bob := s.register(t, "Bob", "bob@example.com")

	_, err := s.chat.Send(ctx, alice.ID, domain.SendMessageRequest{ReceiverID: bob.ID.String(), Content: "first"})
	require.NoError(t, err)

	s.clock.advance(time.Second)
	first, err := s.chat.Poll(ctx, bob.ID, nil)
	require.NoError(t, err)
	require.Len(t, first.Messages, 1)

	since := first.Timestamp
	s.clock.advance(4 * time.Second)
	second, err := s.chat.Poll(ctx, bob.ID, &since)
	require.NoError(t, err)
	s.clock.advance(4 * time.Second)
	third, err := s.chat.Poll(ctx, bob.ID, &since)
	require.NoError(t, err)

	assert.Empty(t, second.Messages)
	assert.Empty(t, third.Messages)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
	assert.False(t, third.Timestamp.Before(second.Timestamp))
}

func TestChatScenario_SelfMessageCreatesNoRow(t *testing.T) {
	s := newChatStack(t)
	ctx := s.ctx
	alice := s.register(t, "Alice", "alice@example.com")

	_, err := s.chat.Send(ctx, alice.ID, domain.SendMessageRequest{ReceiverID: alice.ID.String(), Content: "me"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	convs, err := s.chat.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
