package line

import (
	"context"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/kbrelay/internal/domain"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// KindTextMessage is the only event kind the relay answers.
const KindTextMessage = "message.text"

// ErrInvalidSignature is returned by Dispatch when X-Line-Signature does not
// match the body.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// EventHandler processes one webhook event.
type EventHandler func(ctx context.Context, event webhook.EventInterface)

// Ledger remembers webhook event ids already handled.
type Ledger interface {
	// MarkSeen records id and reports whether it had been recorded before.
	MarkSeen(id string) bool
}

// Dispatcher validates webhook requests and routes each event to the handler
// registered for its kind. Events without a handler are logged and ignored.
type Dispatcher struct {
	channelSecret string
	maxConcurrent int
	ledger        Ledger
	handlers      map[string]EventHandler
}

func NewDispatcher(channelSecret string, maxConcurrent int, ledger Ledger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		channelSecret: channelSecret,
		maxConcurrent: maxConcurrent,
		ledger:        ledger,
		handlers:      make(map[string]EventHandler),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (d *Dispatcher) Handle(kind string, h EventHandler) {
	d.handlers[kind] = h
}

// HandleText registers fn for text message events.
func (d *Dispatcher) HandleText(fn func(ctx context.Context, msg domain.TextMessage)) {
	d.Handle(KindTextMessage, func(ctx context.Context, event webhook.EventInterface) {
		msg, ok := TextMessageFromEvent(event)
		if !ok {
			return
		}
		fn(ctx, msg)
	})
}

// Dispatch parses and verifies r, then runs the handlers for its events and
// waits for all of them. Only parse and signature errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request) error {
	cb, err := webhook.ParseRequest(d.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return ErrInvalidSignature
		}
		return errors.Wrap(err, "parse webhook request")
	}

	log := observability.WithFields(ctx, "component", "line")
	log.Info().Int("events", len(cb.Events)).Str("destination", cb.Destination).Msg("webhook received")

	g := errgroup.Group{}
	g.SetLimit(d.maxConcurrent)

	for _, event := range cb.Events {
		kind := EventKind(event)
		h, ok := d.handlers[kind]
		if !ok {
			log.Debug().Str("kind", kind).Msg("no handler for event kind")
			continue
		}
		if id, redelivery := eventID(event); id != "" && d.ledger != nil && d.ledger.MarkSeen(id) {
			log.Info().Str("event_id", id).Bool("redelivery", redelivery).Msg("skipping event already handled")
			continue
		}

		g.Go(func() error {
			h(ctx, event)
			return nil
		})
	}

	return g.Wait()
}

// EventKind names an event for dispatch: "message.<type>" for messages, the
// webhook type otherwise.
func EventKind(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		if _, ok := e.Message.(webhook.TextMessageContent); ok {
			return KindTextMessage
		}
		return "message.other"
	default:
		return event.GetType()
	}
}

// TextMessageFromEvent extracts the text payload of a text message event.
func TextMessageFromEvent(event webhook.EventInterface) (domain.TextMessage, bool) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		return domain.TextMessage{}, false
	}
	text, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return domain.TextMessage{}, false
	}

	return domain.TextMessage{
		EventID:    e.WebhookEventId,
		Text:       text.Text,
		ReplyToken: e.ReplyToken,
		UserID:     domain.UserID(sourceUserID(e.Source)),
	}, true
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

func eventID(event webhook.EventInterface) (string, bool) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		return "", false
	}
	redelivery := e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
	return e.WebhookEventId, redelivery
}
