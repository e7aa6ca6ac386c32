package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/kbrelay/internal/adapters/http"
	"github.com/PabloGalante/kbrelay/internal/adapters/line"
	"github.com/PabloGalante/kbrelay/internal/adapters/storage/memory"
	"github.com/PabloGalante/kbrelay/internal/app/bridge"
	"github.com/PabloGalante/kbrelay/internal/app/prompt"
	"github.com/PabloGalante/kbrelay/internal/app/relay"
	"github.com/PabloGalante/kbrelay/internal/config"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

func newServeCommand(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the LINE webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load()
			if err := cfg.Validate(true); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.Logger()

	replier, err := line.NewReplier(cfg.LineChannelAccessToken, line.WithTimeout(cfg.ReplyTimeout))
	if err != nil {
		return err
	}

	mgr := newManager(cfg)
	svc := relay.NewService(bridge.New(mgr), replier, prompt.NewPolicy(cfg.DetailTriggers), cfg.QueryTimeout)

	dispatcher := line.NewDispatcher(cfg.LineChannelSecret, cfg.MaxConcurrentEvents, memory.NewEventLedger(0))
	dispatcher.HandleText(svc.HandleText)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpadapter.NewServer(dispatcher, mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("kbrelay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	// In-flight requests are not drained; pending replies are abandoned.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		return srv.Close()
	})

	return g.Wait()
}
