// Package telegram connects the relay to the Telegram Bot API: a Platform
// implementation for forum topics and messages, and update sources for
// long polling and webhooks.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/relay"
	"go.uber.org/zap"
)

// APIConfig describes how to reach the Bot API.
type APIConfig struct {
	Token    string
	Endpoint string // defaults to tgbotapi.APIEndpoint
	Debug    bool
}

// NewBotAPI connects to the Bot API with an HTTP client bounded by timeout.
func NewBotAPI(cfg APIConfig, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// Client implements relay.Platform. Forum topics and message_thread_id are
// not covered by the library's typed configs, so requests go through
// MakeRequest with explicit parameters.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

var _ relay.Platform = (*Client)(nil)

func NewClient(api *tgbotapi.BotAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger}
}

type forumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name"`
}

type messageRef struct {
	MessageID int `json:"message_id"`
}

func (c *Client) CreateThread(ctx context.Context, containerID int64, title string) (int64, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", containerID)
	params.AddNonEmpty("name", title)

	var topic forumTopic
	if err := c.call(ctx, "createForumTopic", params, &topic); err != nil {
		return 0, fmt.Errorf("%w: %v", relay.ErrThreadCreationFailed, err)
	}
	if topic.MessageThreadID == 0 {
		return 0, fmt.Errorf("%w: empty message_thread_id in response", relay.ErrThreadCreationFailed)
	}
	c.logger.Debug("Forum topic created",
		zap.Int64("chat_id", containerID),
		zap.Int64("thread_id", topic.MessageThreadID),
		zap.String("name", topic.Name))
	return topic.MessageThreadID, nil
}

func (c *Client) CloseThread(ctx context.Context, containerID, threadID int64) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", containerID)
	params.AddNonZero64("message_thread_id", threadID)

	if err := c.call(ctx, "closeForumTopic", params, nil); err != nil {
		return fmt.Errorf("close topic %d: %w", threadID, err)
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, msg relay.TextMessage) (int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", msg.ChatID)
	params.AddNonZero64("message_thread_id", msg.ThreadID)
	params.AddNonEmpty("text", msg.Text)
	if msg.ReplyTo != 0 {
		params.AddNonZero("reply_to_message_id", msg.ReplyTo)
		params.AddBool("allow_sending_without_reply", true)
	}

	var sent messageRef
	if err := c.call(ctx, "sendMessage", params, &sent); err != nil {
		return 0, deliveryError(err)
	}
	return sent.MessageID, nil
}

func (c *Client) CopyMessage(ctx context.Context, req relay.CopyRequest) (int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", req.ChatID)
	params.AddNonZero64("message_thread_id", req.ThreadID)
	params.AddNonZero64("from_chat_id", req.FromChatID)
	params.AddNonZero("message_id", req.MessageID)

	var copied messageRef
	if err := c.call(ctx, "copyMessage", params, &copied); err != nil {
		return 0, deliveryError(err)
	}
	return copied.MessageID, nil
}

// call performs one Bot API request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params tgbotapi.Params, out any) error {
	return makeRequest(ctx, c.api, method, params, out)
}

func makeRequest(ctx context.Context, api *tgbotapi.BotAPI, method string, params tgbotapi.Params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := api.MakeRequest(method, params)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// deliveryError maps a send failure onto the relay taxonomy. Telegram
// answers 403 when the user blocked the bot or deleted their account.
func deliveryError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", relay.ErrDeliveryBlocked, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", relay.ErrDeliveryFailed, err)
}
