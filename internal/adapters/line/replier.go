package line

import (
	"context"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/pkg/errors"
)

// maxTextLength is the LINE limit for a single text message.
const maxTextLength = 5000

// Replier sends text replies with the LINE Messaging API.
type Replier struct {
	api     *messaging_api.MessagingApiAPI
	timeout time.Duration
}

type ReplierOption func(*replierConfig)

type replierConfig struct {
	endpoint string
	timeout  time.Duration
}

// WithEndpoint points the client at another API host (tests, proxies).
func WithEndpoint(endpoint string) ReplierOption {
	return func(c *replierConfig) { c.endpoint = endpoint }
}

// WithTimeout caps each reply call. Zero or less means no cap.
func WithTimeout(d time.Duration) ReplierOption {
	return func(c *replierConfig) { c.timeout = d }
}

func NewReplier(channelAccessToken string, opts ...ReplierOption) (*Replier, error) {
	cfg := replierConfig{timeout: 10 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	var apiOpts []messaging_api.MessagingApiAPIOption
	if cfg.endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.endpoint))
	}

	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken, apiOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create LINE messaging client")
	}

	return &Replier{api: api, timeout: cfg.timeout}, nil
}

// Reply sends text with a single-use reply token.
func (r *Replier) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("empty reply token")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err := r.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: truncate(text, maxTextLength)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "LINE reply")
	}
	return nil
}

// truncate keeps at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
