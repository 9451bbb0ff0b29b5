// Package chat persists the 24/7 chat and runs the scripted bot that
// keeps the room warm between human messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/log"
)

const (
	// DefaultRoom is where the public chat and the bot live.
	DefaultRoom = "general"

	eventNewMessage = "chat_mensaje"
	botName         = "CarnavalBot"
	botInterval     = 5 * time.Minute

	maxContentLen = 500
	maxSenderLen  = 50
	historyLimit  = 50
)

// ErrEmptyMessage rejects blank chat lines.
var ErrEmptyMessage = errors.New("empty chat message")

// MessageStore is the persistence surface.
type MessageStore interface {
	Append(ctx context.Context, params db.CreateMessageParams) (*db.ChatMessage, error)
	History(ctx context.Context, room string, limit int) ([]*db.ChatMessage, error)
}

// Broadcaster pushes new messages to connected clients.
type Broadcaster interface {
	Publish(room, event string, payload any)
}

// LetraPicker supplies random lyrics for the bot.
type LetraPicker interface {
	Random(ctx context.Context) (*db.Letra, error)
}

// VideoPicker supplies random catalog videos for the bot.
type VideoPicker interface {
	RandomByPhases(ctx context.Context, phases []string) (*db.Video, error)
}

// triviaLines are the bot's fixed repertoire.
var triviaLines = []string{
	"¿Sabías que el COAC se celebra en el Gran Teatro Falla desde 1910?",
	"El Carnaval de Cádiz es uno de los más antiguos de España, con más de 500 años de historia.",
	"Las modalidades del concurso son chirigota, comparsa, coro y cuarteto.",
	"El pasodoble es la pieza más seria del repertorio; el cuplé, la más gamberra.",
	"Los coros actúan sobre bateas que recorren las calles del centro de Cádiz.",
	"La final del Falla suele acabar de madrugada, con el teatro lleno hasta el paraíso.",
}

// Service handles chat messages and drives the bot.
type Service struct {
	store  MessageStore
	hub    Broadcaster
	letras LetraPicker
	videos VideoPicker
	rng    *rand.Rand
}

// New builds a chat service.
func New(store MessageStore, hub Broadcaster, letras LetraPicker, videos VideoPicker) *Service {
	return &Service{
		store:  store,
		hub:    hub,
		letras: letras,
		videos: videos,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// History returns the most recent messages in a room, oldest first.
func (s *Service) History(ctx context.Context, room string) ([]*db.ChatMessage, error) {
	if room == "" {
		room = DefaultRoom
	}
	return s.store.History(ctx, room, historyLimit)
}

// Post persists a user message and broadcasts it. Content and sender
// are trimmed and capped, never rejected for length.
func (s *Service) Post(ctx context.Context, room, sender, content string, userID *int64) (*db.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		sender = "anónimo"
	}
	if len(sender) > maxSenderLen {
		sender = sender[:maxSenderLen]
	}
	if room == "" {
		room = DefaultRoom
	}

	msg, err := s.store.Append(ctx, db.CreateMessageParams{
		Room:    room,
		Sender:  sender,
		UserID:  userID,
		Content: content,
		Kind:    db.ChatKindUser,
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(room, eventNewMessage, msg)
	return msg, nil
}

// RunBot posts a scripted line to the general room every five minutes
// until the context ends.
func (s *Service) RunBot(ctx context.Context) {
	log.Info("chat bot started", zap.Duration("interval", botInterval))

	ticker := time.NewTicker(botInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("chat bot stopped")
			return
		case <-ticker.C:
			if err := s.botSpeak(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("chat bot message failed", zap.Error(err))
			}
		}
	}
}

// botSpeak composes and posts one bot line.
func (s *Service) botSpeak(ctx context.Context) error {
	content := s.composeLine(ctx)

	msg, err := s.store.Append(ctx, db.CreateMessageParams{
		Room:    DefaultRoom,
		Sender:  botName,
		Content: content,
		Kind:    db.ChatKindBot,
	})
	if err != nil {
		return err
	}

	s.hub.Publish(DefaultRoom, eventNewMessage, msg)
	return nil
}

// composeLine picks a lyric fragment, a catalog suggestion, or a
// trivia line. Picker failures degrade to trivia.
func (s *Service) composeLine(ctx context.Context) string {
	switch s.rng.Intn(3) {
	case 0:
		if letra, err := s.letras.Random(ctx); err == nil && letra.HasContent() {
			return fmt.Sprintf("🎭 Un recuerdo de %q:\n%s", letra.Title, fragment(letra.Content))
		}
	case 1:
		if video, err := s.videos.RandomByPhases(ctx, nil); err == nil {
			return fmt.Sprintf("📺 ¿Ya has visto %q? https://youtu.be/%s", video.Title, video.YouTubeID)
		}
	}
	return s.trivia()
}

func (s *Service) trivia() string {
	return triviaLines[s.rng.Intn(len(triviaLines))]
}

// fragment returns the first few lines of a lyric.
func fragment(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 4 {
		lines = lines[:4]
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxContentLen-100 {
		out = out[:maxContentLen-100]
	}
	return out
}
