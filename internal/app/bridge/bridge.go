package bridge

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/PabloGalante/kbrelay/internal/domain"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// Asker schedules a prompt on the execution context that owns the session.
// The returned channel must be buffered so delivery never blocks.
type Asker interface {
	AskAsync(ctx context.Context, prompt string) (<-chan domain.Result, error)
}

// Bridge lets any goroutine wait a bounded time for an answer from the
// session's execution context.
type Bridge struct {
	asker Asker
}

func New(asker Asker) *Bridge {
	return &Bridge{asker: asker}
}

// SubmitAndWait returns the answer, or one of domain.ErrNoAnswer,
// domain.ErrSessionUnavailable and domain.ErrQueryTimeout.
//
// A timeout only ends the caller's wait. The ask keeps running on the
// execution context and its late result is dropped into a channel nobody
// reads any more.
func (b *Bridge) SubmitAndWait(ctx context.Context, prompt string, deadline time.Duration) (string, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	log := observability.WithFields(ctx, "component", "bridge")
	start := time.Now()

	results, err := b.asker.AskAsync(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			log.Error().Err(err).Dur("deadline", deadline).Msg("query could not be queued before the deadline")
			return "", errors.Wrap(domain.ErrQueryTimeout, "enqueue")
		}
		return "", err
	}

	select {
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Answer, nil
	case <-ctx.Done():
		log.Error().
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Dur("deadline", deadline).
			Msg("stopped waiting for knowledge base answer")
		return "", errors.Wrapf(domain.ErrQueryTimeout, "no answer after %s", time.Since(start).Round(time.Millisecond))
	}
}
