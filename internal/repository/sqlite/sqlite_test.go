package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/repository/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sqlite.DB
	regs     *sqlite.RegistrationRepository
	sessions *sqlite.SessionRepository
	creds    *sqlite.CredentialRepository
	messages *sqlite.MessageRepository
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		db:       db,
		regs:     sqlite.NewRegistrationRepository(db),
		sessions: sqlite.NewSessionRepository(db),
		creds:    sqlite.NewCredentialRepository(db),
		messages: sqlite.NewMessageRepository(db),
		ctx:      ctx,
	}
}

func (f *fixture) register(t *testing.T, name, email, org string) uuid.UUID {
	t.Helper()
	reg := &domain.Registration{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Organization: org,
		CreatedAt:    base,
	}
	require.NoError(t, f.regs.Create(f.ctx, reg))
	return reg.ID
}

func (f *fixture) send(t *testing.T, from, to uuid.UUID, content string, at time.Time) domain.Message {
	t.Helper()
	msg := domain.Message{
		ID:         uuid.New(),
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		CreatedAt:  at,
	}
	require.NoError(t, f.messages.Create(f.ctx, &msg))
	return msg
}

func TestRegistrationRepository(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice Adams", "Alice@Example.com", "Acme")
	bob := f.register(t, "Bob Brown", "bob@example.com", "Globex")
	f.register(t, "Carol 100%", "carol@example.com", "Initech")

	t.Run("get by email is case insensitive", func(t *testing.T) {
		reg, err := f.regs.GetByEmail(f.ctx, "  alice@example.COM ")
		require.NoError(t, err)
		require.NotNil(t, reg)
		assert.Equal(t, alice, reg.ID)
	})

	t.Run("unknown email returns nil", func(t *testing.T) {
		reg, err := f.regs.GetByEmail(f.ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, reg)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		err := f.regs.Create(f.ctx, &domain.Registration{ID: uuid.New(), Name: "Dup", Email: "BOB@example.com", CreatedAt: base})
		assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
	})

	t.Run("list by ids skips unknown ids", func(t *testing.T) {
		regs, err := f.regs.ListByIDs(f.ctx, []uuid.UUID{alice, bob, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, regs, 2)
	})

	t.Run("search excludes caller and escapes wildcards", func(t *testing.T) {
		regs, err := f.regs.Search(f.ctx, "", alice, 10)
		require.NoError(t, err)
		require.Len(t, regs, 2)
		assert.Equal(t, "Bob Brown", regs[0].Name)

		regs, err = f.regs.Search(f.ctx, "glob", alice, 10)
		require.NoError(t, err)
		require.Len(t, regs, 1)
		assert.Equal(t, bob, regs[0].ID)

		regs, err = f.regs.Search(f.ctx, "%", alice, 10)
		require.NoError(t, err)
		require.Len(t, regs, 1)
		assert.Equal(t, "Carol 100%", regs[0].Name)
	})
}

func TestSessionRepository(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")
	bob := f.register(t, "Bob", "bob@example.com", "")

	session := &domain.Session{
		ID:             uuid.New(),
		RegistrationID: alice,
		Token:          "token-a",
		LastActiveAt:   base,
		CreatedAt:      base,
		ExpiresAt:      base.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, f.sessions.Create(f.ctx, session))

	t.Run("valid token resolves registration", func(t *testing.T) {
		s, reg, err := f.sessions.GetValidByToken(f.ctx, "token-a", base.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, session.ID, s.ID)
		assert.Equal(t, "Alice", reg.Name)
	})

	t.Run("expired token is not found", func(t *testing.T) {
		s, reg, err := f.sessions.GetValidByToken(f.ctx, "token-a", session.ExpiresAt)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Nil(t, reg)
	})

	t.Run("presence window boundary", func(t *testing.T) {
		now := base.Add(time.Hour)
		require.NoError(t, f.sessions.Touch(f.ctx, session.ID, now.Add(-4*time.Minute)))

		active, err := f.sessions.ActiveSince(f.ctx, []uuid.UUID{alice, bob}, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.True(t, active[alice])
		assert.False(t, active[bob])

		active, err = f.sessions.ActiveSince(f.ctx, []uuid.UUID{alice}, now.Add(1*time.Minute).Add(-5*time.Minute))
		require.NoError(t, err)
		assert.True(t, active[alice])

		active, err = f.sessions.ActiveSince(f.ctx, []uuid.UUID{alice}, now.Add(2*time.Minute).Add(-5*time.Minute))
		require.NoError(t, err)
		assert.False(t, active[alice])
	})

	t.Run("touch never moves heartbeat backwards", func(t *testing.T) {
		require.NoError(t, f.sessions.Touch(f.ctx, session.ID, base))
		s, _, err := f.sessions.GetValidByToken(f.ctx, "token-a", base)
		require.NoError(t, err)
		assert.True(t, s.LastActiveAt.After(base))
	})

	t.Run("delete by registration keeps the current session", func(t *testing.T) {
		other := &domain.Session{ID: uuid.New(), RegistrationID: alice, Token: "token-b", LastActiveAt: base, CreatedAt: base, ExpiresAt: session.ExpiresAt}
		require.NoError(t, f.sessions.Create(f.ctx, other))

		require.NoError(t, f.sessions.DeleteByRegistration(f.ctx, alice, &session.ID))

		s, _, err := f.sessions.GetValidByToken(f.ctx, "token-b", base)
		require.NoError(t, err)
		assert.Nil(t, s)
		s, _, err = f.sessions.GetValidByToken(f.ctx, "token-a", base)
		require.NoError(t, err)
		assert.NotNil(t, s)

		require.NoError(t, f.sessions.DeleteByToken(f.ctx, "token-a"))
		s, _, err = f.sessions.GetValidByToken(f.ctx, "token-a", base)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestCredentialRepository(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")

	cred, err := f.creds.Get(f.ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, cred)

	t.Run("reset token creates placeholder record", func(t *testing.T) {
		require.NoError(t, f.creds.SetResetToken(f.ctx, alice, "reset-1", base.Add(time.Hour), base))

		cred, err := f.creds.Get(f.ctx, alice)
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.False(t, cred.HasPassword())
		require.NotNil(t, cred.ResetToken)
		assert.Equal(t, "reset-1", *cred.ResetToken)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		_, ok, err := f.creds.CompleteReset(f.ctx, "reset-1", "hash", base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("token is single use", func(t *testing.T) {
		id, ok, err := f.creds.CompleteReset(f.ctx, "reset-1", "hash-1", base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, alice, id)

		_, ok, err = f.creds.CompleteReset(f.ctx, "reset-1", "hash-2", base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		cred, err := f.creds.Get(f.ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "hash-1", cred.PasswordHash)
		assert.Nil(t, cred.ResetToken)
		assert.Nil(t, cred.ResetTokenExpiresAt)
	})

	t.Run("set password upserts", func(t *testing.T) {
		require.NoError(t, f.creds.SetPassword(f.ctx, alice, "hash-3", base.Add(time.Hour)))
		cred, err := f.creds.Get(f.ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "hash-3", cred.PasswordHash)
	})
}

func TestMessageRepository_ListBetween(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")
	bob := f.register(t, "Bob", "bob@example.com", "")
	carol := f.register(t, "Carol", "carol@example.com", "")

	for i := 0; i < 5; i++ {
		f.send(t, alice, bob, "ab", base.Add(time.Duration(i)*time.Minute))
	}
	f.send(t, bob, alice, "ba", base.Add(10*time.Minute))
	f.send(t, alice, carol, "ac", base.Add(11*time.Minute))

	page, err := f.messages.ListBetween(f.ctx, alice, bob, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, base.Add(3*time.Minute), page[0].CreatedAt)
	assert.Equal(t, "ba", page[2].Content)

	cursor := page[0].CreatedAt
	older, err := f.messages.ListBetween(f.ctx, bob, alice, &cursor, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, base, older[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Minute), older[2].CreatedAt)
}

func TestMessageRepository_MarkReadOnce(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")
	bob := f.register(t, "Bob", "bob@example.com", "")

	f.send(t, alice, bob, "one", base)
	f.send(t, alice, bob, "two", base.Add(time.Second))
	f.send(t, bob, alice, "reply", base.Add(2*time.Second))

	n, err := f.messages.MarkRead(f.ctx, alice, bob, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.messages.MarkRead(f.ctx, alice, bob, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	msgs, err := f.messages.ListBetween(f.ctx, alice, bob, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs[:2] {
		require.NotNil(t, m.ReadAt)
		assert.Equal(t, base.Add(time.Minute), *m.ReadAt)
	}
	assert.Nil(t, msgs[2].ReadAt, "messages to the other direction stay unread")
}

func TestMessageRepository_LatestPerPartner(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")
	bob := f.register(t, "Bob", "bob@example.com", "")
	carol := f.register(t, "Carol", "carol@example.com", "")
	dave := f.register(t, "Dave", "dave@example.com", "")

	f.send(t, alice, bob, "old to bob", base)
	f.send(t, bob, alice, "latest from bob", base.Add(time.Minute))
	// Same timestamp for two partners must not swap rows between them.
	f.send(t, carol, alice, "carol tie", base.Add(2*time.Minute))
	f.send(t, alice, dave, "dave tie", base.Add(2*time.Minute))
	f.send(t, bob, carol, "not involving alice", base.Add(3*time.Minute))

	latest, err := f.messages.LatestPerPartner(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, latest, 3)

	byPartner := make(map[uuid.UUID]domain.Message)
	for _, m := range latest {
		byPartner[m.PartnerOf(alice)] = m
	}
	assert.Equal(t, "latest from bob", byPartner[bob].Content)
	assert.Equal(t, "carol tie", byPartner[carol].Content)
	assert.Equal(t, "dave tie", byPartner[dave].Content)
	assert.Equal(t, "latest from bob", latest[2].Content, "ordered by most recent activity")
}

func TestMessageRepository_UnreadAndSince(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")
	bob := f.register(t, "Bob", "bob@example.com", "")
	carol := f.register(t, "Carol", "carol@example.com", "")

	f.send(t, bob, alice, "b1", base)
	f.send(t, bob, alice, "b2", base.Add(time.Second))
	f.send(t, carol, alice, "c1", base.Add(2*time.Second))
	f.send(t, alice, bob, "a1", base.Add(3*time.Second))

	all, err := f.messages.UnreadCounts(f.ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{bob: 2, carol: 1}, all)

	onlyBob, err := f.messages.UnreadCounts(f.ctx, alice, []uuid.UUID{bob})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{bob: 2}, onlyBob)

	none, err := f.messages.UnreadCounts(f.ctx, alice, []uuid.UUID{})
	require.NoError(t, err)
	assert.Empty(t, none)

	since, err := f.messages.ListSince(f.ctx, alice, base, 10)
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.Equal(t, "b2", since[0].Content)
	assert.Equal(t, "a1", since[2].Content)

	capped, err := f.messages.ListSince(f.ctx, alice, base.Add(-time.Second), 2)
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.Equal(t, "b1", capped[0].Content)
}

func TestMessageRepository_RejectsSelfMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "Alice", "alice@example.com", "")

	err := f.messages.Create(f.ctx, &domain.Message{ID: uuid.New(), SenderID: alice, ReceiverID: alice, Content: "me", CreatedAt: base})
	assert.Error(t, err)
}
