package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/net/proxy"
)

// MaxFileBytes is the largest file the Bot API lets bots download.
const MaxFileBytes = 20 << 20

// ErrFileTooLarge is returned when a file exceeds MaxFileBytes.
var ErrFileTooLarge = errors.New("telegram file too large")

// botAPI is the subset of *tgbotapi.BotAPI the adapter calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token string
	// ProxyURL accepts socks5://, http:// and https:// proxies.
	ProxyURL     string
	APIEndpoint  string
	FileEndpoint string
	// Timeout bounds a single HTTP exchange; it must exceed the long-poll timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client implements the bot's messenger on the Telegram Bot API.
type Client struct {
	api          botAPI
	token        string
	fileEndpoint string
	httpClient   *http.Client
	username     string
	logger       *slog.Logger
}

// NewClient builds the HTTP client, authenticates with getMe and returns the adapter.
func NewClient(cfg ClientConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram bot token required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	transport, err := newTransport(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: timeout, Transport: transport}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fileEndpoint := cfg.FileEndpoint
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	return &Client{
		api:          bot,
		token:        token,
		fileEndpoint: fileEndpoint,
		httpClient:   httpClient,
		username:     bot.Self.UserName,
		logger:       logger,
	}, nil
}

func newTransport(rawProxy string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	rawProxy = strings.TrimSpace(rawProxy)
	if rawProxy == "" {
		return transport, nil
	}
	u, err := url.Parse(rawProxy)
	if err != nil {
		return nil, fmt.Errorf("parse telegram proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return transport, nil
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("init telegram proxy: %w", err)
	}
	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// Username is the bot's @handle as reported by getMe.
func (c *Client) Username() string { return c.username }

// SendText sends text to chatID, as a reply when replyTo is non-zero, and
// returns the new message id. A message that lands after ctx gave up is
// deleted, since the caller never learned its id.
func (c *Client) SendText(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
		msg.AllowSendingWithoutReply = true
	}
	sent, err := withContext(ctx, func() (tgbotapi.Message, error) { return c.api.Send(msg) }, func(late tgbotapi.Message) {
		c.logger.Warn("telegram message sent after deadline, deleting", "chat_id", chatID, "message_id", late.MessageID)
		if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, late.MessageID)); err != nil && !isMessageGone(err) {
			c.logger.Warn("delete late message failed", "chat_id", chatID, "message_id", late.MessageID, "err", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhoto uploads data as a photo with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, data []byte, filename, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	photo.Caption = caption
	late := func(m tgbotapi.Message) {
		c.logger.Warn("telegram photo sent after deadline", "chat_id", chatID, "message_id", m.MessageID)
	}
	if _, err := withContext(ctx, func() (tgbotapi.Message, error) { return c.api.Send(photo) }, late); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// DeleteMessage removes a message. A message that is already gone counts as deleted.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	del := tgbotapi.NewDeleteMessage(chatID, messageID)
	_, err := withContext(ctx, func() (*tgbotapi.APIResponse, error) { return c.api.Request(del) }, nil)
	if err != nil && !isMessageGone(err) {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func isMessageGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message can't be deleted")
}

// FetchFile downloads a file by its Bot API reference.
func (c *Client) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := withContext(ctx, func() (tgbotapi.File, error) {
		return c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FileSize > MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, file.FileSize)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("get file: no path for %s", fileID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.fileEndpoint, c.token, file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(data) > MaxFileBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// GetUpdates makes Client usable as the poller's update source.
func (c *Client) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return c.api.GetUpdates(cfg)
}

// withContext runs a blocking Bot API call and gives up when ctx ends.
// The call itself is bounded by the HTTP client timeout; if it still succeeds
// after ctx ended, late receives the result.
func withContext[T any](ctx context.Context, fn func() (T, error), late func(T)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()
	select {
	case <-ctx.Done():
		if late != nil {
			go func() {
				if r := <-ch; r.err == nil {
					late(r.v)
				}
			}()
		}
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
