// Command chatpoll signs in to the chat API and follows incoming messages from
// the terminal using the same short-polling protocol as the web client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rrens/event-chat/internal/chatclient"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("CHAT_URL", "http://localhost:8080/api/chat"), "chat API base URL")
	email := flag.String("email", os.Getenv("CHAT_EMAIL"), "attendee email")
	password := flag.String("password", os.Getenv("CHAT_PASSWORD"), "attendee password")
	interval := flag.Duration("interval", chatclient.DefaultInterval, "poll interval")
	to := flag.String("to", "", "send one message to this attendee id before following")
	text := flag.String("send", "", "message content to send with -to")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "email and password are required (-email/-password or CHAT_EMAIL/CHAT_PASSWORD)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chatclient.New(*baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}

	me, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	log.Info().Str("name", me.Name).Str("id", me.ID.String()).Msg("Signed in")

	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Logout(logoutCtx); err != nil {
			log.Warn().Err(err).Msg("Logout failed")
		}
	}()

	_, conversations, err := client.Me(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load conversations")
	}
	for _, c := range conversations {
		fmt.Printf("%-24s %3d unread  online=%-5t  %s\n", c.Partner.Name, c.UnreadCount, c.IsOnline, c.LastMessage.Content)
	}

	names := make(map[uuid.UUID]string, len(conversations))
	for _, c := range conversations {
		names[c.Partner.ID] = c.Partner.Name
	}

	poller := chatclient.NewPoller(client, me.ID,
		chatclient.WithInterval(*interval),
		chatclient.OnUpdate(func(u chatclient.Update) {
			for _, c := range u.Conversations {
				names[c.Partner.ID] = c.Partner.Name
			}
			for _, m := range u.NewMessages {
				from := names[m.SenderID]
				if m.SenderID == me.ID {
					from = "me -> " + names[m.ReceiverID]
				}
				if from == "" {
					from = m.SenderID.String()
				}
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), from, m.Content)
			}
		}),
	)

	if *to != "" {
		receiverID, err := uuid.Parse(*to)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -to attendee id")
		}
		if _, err := poller.SendOptimistic(ctx, receiverID, *text); err != nil {
			log.Error().Err(err).Msg("Send failed")
		}
	}

	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Polling stopped")
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
