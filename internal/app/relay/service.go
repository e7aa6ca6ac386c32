package relay

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/PabloGalante/kbrelay/internal/app/prompt"
	"github.com/PabloGalante/kbrelay/internal/domain"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// User-facing texts sent through the reply handle.
const (
	Disclaimer = "\n\n(註：預設為簡短摘要。如需詳細回答請在問題中包含「詳細」二字，但等待時間會較長。)\n(免責聲明：此資訊僅供輔助參考，臨床決策請依專業判斷)"

	BusyMessage         = "系統忙碌中或無法讀取資料，請稍後再試。"
	UnavailableMessage  = "系統啟動中或連線失敗，請稍後再試。"
	TimeoutMessage      = "查詢逾時，可能是問題太複雜或系統忙碌，請稍後再試。"
	GenericErrorMessage = "系統發生錯誤，請稍後再試。"
)

// DefaultQueryTimeout stays below the LINE reply token lifetime.
const DefaultQueryTimeout = 55 * time.Second

// Querier waits a bounded time for an answer to a prompt.
type Querier interface {
	SubmitAndWait(ctx context.Context, prompt string, deadline time.Duration) (string, error)
}

type Service struct {
	querier Querier
	replier domain.Replier
	policy  prompt.Policy
	timeout time.Duration
}

func NewService(querier Querier, replier domain.Replier, policy prompt.Policy, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Service{
		querier: querier,
		replier: replier,
		policy:  policy,
		timeout: timeout,
	}
}

// HandleText answers one inbound text message. It never returns an error:
// every outcome is reported to the user through the reply handle.
func (s *Service) HandleText(ctx context.Context, msg domain.TextMessage) {
	text := strings.TrimSpace(msg.Text)

	log := observability.WithFields(ctx,
		"component", "relay",
		"user_id", string(msg.UserID),
		"event_id", msg.EventID,
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("message handling panicked")
			s.reply(ctx, msg.ReplyToken, GenericErrorMessage)
		}
	}()

	q := s.policy.Build(text)
	log.Info().Str("text", text).Str("mode", string(q.Mode)).Msg("received message")

	start := time.Now()
	answer, err := s.querier.SubmitAndWait(ctx, q.Prompt, s.timeout)
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		log.Info().Int64("elapsed_ms", elapsed).Msg("answer ready")
		s.reply(ctx, msg.ReplyToken, answer+Disclaimer)

	case errors.Is(err, domain.ErrQueryTimeout):
		log.Error().Err(err).Int64("elapsed_ms", elapsed).Msg("query timed out")
		s.reply(ctx, msg.ReplyToken, TimeoutMessage)

	case errors.Is(err, domain.ErrSessionUnavailable):
		log.Warn().Err(err).Msg("session not available")
		s.reply(ctx, msg.ReplyToken, UnavailableMessage)

	case errors.Is(err, domain.ErrNoAnswer):
		log.Error().Err(err).Int64("elapsed_ms", elapsed).Msg("no answer from knowledge base")
		s.reply(ctx, msg.ReplyToken, BusyMessage)

	default:
		log.Error().Err(err).Msg("unexpected failure while handling message")
		s.reply(ctx, msg.ReplyToken, GenericErrorMessage)
	}
}

// reply is fire-and-forget: failures are logged, never returned.
func (s *Service) reply(ctx context.Context, token, text string) {
	log := observability.WithFields(ctx, "component", "relay")
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("reply sender panicked")
		}
	}()

	if err := s.replier.Reply(ctx, token, text); err != nil {
		log.Error().Err(err).Msg("failed to send reply")
		return
	}
	log.Info().Int("reply_len", len(text)).Msg("reply sent")
}
