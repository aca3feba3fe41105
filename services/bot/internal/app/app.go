package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"palmreader/pkg/ai"
	"palmreader/pkg/domain"
	"palmreader/pkg/events"
	"palmreader/pkg/sanitize"
	"palmreader/pkg/store"
)

const (
	// Telegram allows 4096 UTF-16 units per message; the rest is room for the part marker.
	DefaultChunkLimit      = 4000
	DefaultCallTimeout     = time.Minute
	DefaultPipelineTimeout = 5 * time.Minute
	apologyTimeout         = 15 * time.Second
	maxCaptionRunes        = 1024
)

// Messenger is the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, replyTo int, text string) (int, error)
	SendPhoto(ctx context.Context, chatID int64, data []byte, filename, caption string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

// ImageArchive keeps a copy of every received image.
type ImageArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Publisher announces recorded readings.
type Publisher interface {
	PublishReading(ctx context.Context, evt events.ReadingCompleted) error
}

// Limiter caps photos per user.
type Limiter interface {
	AllowUser(ctx context.Context, userID int64) bool
}

// Config holds the collaborators and timings of the bot. Archive, Publisher
// and Limiter are optional.
type Config struct {
	Messenger  Messenger
	Generator  ai.VisionGenerator
	Ledger     store.Ledger
	Sanitizer  *sanitize.Sanitizer
	Archive    ImageArchive
	Publisher  Publisher
	Limiter    Limiter
	Logger     *slog.Logger
	Generation ai.GenerationConfig

	AdminChatID int64
	Prompt      string
	ChunkLimit  int

	// Delays are taken as given; zero disables them.
	AckDelay   time.Duration
	ChunkDelay time.Duration

	CallTimeout     time.Duration
	PipelineTimeout time.Duration
}

// App routes inbound events and runs the photo pipeline.
type App struct {
	messenger Messenger
	generator ai.VisionGenerator
	ledger    store.Ledger
	sanitizer *sanitize.Sanitizer
	archive   ImageArchive
	publisher Publisher
	limiter   Limiter
	logger    *slog.Logger

	generation  map[string]string
	adminChatID int64
	prompt      string
	chunkLimit  int
	ackDelay    time.Duration
	chunkDelay  time.Duration
	callTimeout time.Duration
	pipeTimeout time.Duration
}

// New validates the required collaborators and fills defaults.
func New(cfg Config) (*App, error) {
	if cfg.Messenger == nil {
		return nil, errors.New("messenger required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger required")
	}
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = sanitize.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	chunkLimit := cfg.ChunkLimit
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkLimit
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	pipeTimeout := cfg.PipelineTimeout
	if pipeTimeout <= 0 {
		pipeTimeout = DefaultPipelineTimeout
	}
	return &App{
		messenger:   cfg.Messenger,
		generator:   cfg.Generator,
		ledger:      cfg.Ledger,
		sanitizer:   sanitizer,
		archive:     cfg.Archive,
		publisher:   cfg.Publisher,
		limiter:     cfg.Limiter,
		logger:      logger,
		generation:  cfg.Generation.WithDefaults().Metadata(cfg.Generator.Model()),
		adminChatID: cfg.AdminChatID,
		prompt:      prompt,
		chunkLimit:  chunkLimit,
		ackDelay:    max(cfg.AckDelay, 0),
		chunkDelay:  max(cfg.ChunkDelay, 0),
		callTimeout: callTimeout,
		pipeTimeout: pipeTimeout,
	}, nil
}

// HandleEvent dispatches one inbound event. It never panics.
func (a *App) HandleEvent(ctx context.Context, evt domain.InboundEvent) {
	if evt.Kind == domain.EventPhoto {
		a.HandlePhoto(ctx, evt)
		return
	}
	a.HandleOther(ctx, evt)
}

// HandleOther answers anything that is not a photo with a fixed instruction.
func (a *App) HandleOther(ctx context.Context, evt domain.InboundEvent) {
	log := a.logger.With("user_id", evt.Sender.ID, "chat_id", evt.ChatID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in message handler", "panic", r)
		}
	}()
	reply := MsgOnlyPhotos
	switch {
	case isCommand(evt.Text, "start"), isCommand(evt.Text, "help"):
		reply = MsgWelcome
	case evt.Kind == domain.EventText:
		reply = MsgSendPhoto
	}
	log.Info("non-photo message", "kind", evt.Kind.String())
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	if _, err := a.messenger.SendText(callCtx, evt.ChatID, evt.MessageID, reply); err != nil {
		log.Warn("send instruction failed", "err", err)
	}
}

// isCommand matches /name, /name@bot and /name with arguments.
func isCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.EqualFold(cmd, "/"+name)
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
