// Command chat is a terminal client for the shared chat room. It keeps a
// local ordered view of the log in sync with the backing store and sends
// messages with optimistic single-in-flight semantics.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/config"
	"github.com/takiindev/chat-private/internal/history"
	"github.com/takiindev/chat-private/internal/identity"
	"github.com/takiindev/chat-private/internal/models"
	"github.com/takiindev/chat-private/internal/send"
	"github.com/takiindev/chat-private/internal/store"
	"github.com/takiindev/chat-private/internal/syncer"
	"github.com/takiindev/chat-private/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// Logs go to stderr so they do not interleave with the rendered chat.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.WarnLevel)
	if cfg.IsDevelopment() && os.Getenv("DEBUG") == "true" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ident, err := identity.Load(cfg.DataDir, cfg.MaxUsernameLength)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	user := ident.User()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	log := history.New()
	pipeline := send.New(log, st, user, cfg.MaxMessageLength, cfg.MaxMessages, logger)

	mode := syncer.Push
	if !cfg.EnableRealtime {
		mode = syncer.PollOnce
	}
	controller := syncer.New(log, st, mode, cfg.MaxMessages, pipeline, logger)
	if err := controller.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial sync failed, starting with an empty view")
	}
	defer controller.Stop()

	// Companion websocket path: low-latency delivery of messages relayed by
	// chatd, merged through the same idempotent path as store batches.
	channel := transport.NewChannel(cfg.WSURL, cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts, logger)
	chatSub := channel.On(models.FrameChatMessage, func(ev transport.Event) {
		var cf models.ChatFrame
		if err := json.Unmarshal(ev.Frame.Raw, &cf); err != nil {
			return
		}
		log.Merge([]models.Message{cf.Message})
	})
	defer chatSub.Off()
	if err := channel.Connect(user.ID); err == nil {
		channel.JoinRoom(cfg.RoomID)
		defer func() {
			channel.LeaveRoom(cfg.RoomID)
			channel.Disconnect()
		}()
	}

	render := func() { printLog(log.Snapshot(), user.ID, cfg.MaxMessages) }
	unwatch := log.OnChange(render)
	defer unwatch()
	render()

	fmt.Printf("connected as %s. Type a message, /name <new name>, or /quit\n", user.Name)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), cfg.MaxMessageLength+1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/name "):
			if err := ident.Rename(strings.TrimPrefix(line, "/name ")); err != nil {
				fmt.Println("rename failed:", err)
				continue
			}
			fmt.Println("you are now", user.Name)
		default:
			submit(ctx, pipeline, line)
		}
	}
	return scanner.Err()
}

// openStore picks the store implementation: direct Redis when configured,
// the chatd HTTP API otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.MessageStore, error) {
	if cfg.RedisURL != "" {
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.RoomID, logger)
	}
	return store.NewAPIStore(cfg.APIBaseURL, logger), nil
}

func submit(ctx context.Context, pipeline *send.Pipeline, line string) {
	err := pipeline.Submit(ctx, line)
	if err == nil {
		return
	}

	var remote *send.RemoteError
	switch {
	case errors.Is(err, send.ErrBusy):
		fmt.Println("still sending the previous message, try again in a moment")
	case errors.Is(err, send.ErrEmptyMessage):
		// Nothing to do for a blank line.
	case errors.Is(err, send.ErrMessageTooLong):
		fmt.Println("message too long")
	case errors.As(err, &remote):
		fmt.Printf("send failed (%v), your draft was kept:\n%s\n", remote.Err, remote.Draft)
	default:
		fmt.Println("send failed:", err)
	}
}

// printLog renders the ordered window: banners centered, regular messages
// prefixed with time and sender.
func printLog(messages []models.Message, selfID string, cap int) {
	fmt.Print("\033[H\033[2J") // clear screen
	for _, msg := range messages {
		ts := time.UnixMilli(msg.SortKey()).Format("15:04")
		switch {
		case msg.IsBanner():
			label := msg.Text
			if msg.Name != "" {
				label = msg.Name + ": " + msg.Text
			}
			fmt.Printf("%25s*** %s ***\n", "", label)
		case msg.Pending:
			fmt.Printf("[%s] %s: %s (sending...)\n", ts, msg.Name, msg.Text)
		case msg.UserID == selfID:
			fmt.Printf("[%s] %s (you): %s\n", ts, msg.Name, msg.Text)
		default:
			fmt.Printf("[%s] %s: %s\n", ts, msg.Name, msg.Text)
		}
	}
	fmt.Printf("-- %d/%d messages --\n> ", len(messages), cap)
}
