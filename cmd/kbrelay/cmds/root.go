package cmds

import (
	"github.com/spf13/cobra"

	"github.com/PabloGalante/kbrelay/internal/adapters/notebooklm"
	"github.com/PabloGalante/kbrelay/internal/app/session"
	"github.com/PabloGalante/kbrelay/internal/config"
	"github.com/PabloGalante/kbrelay/internal/domain"
	"github.com/PabloGalante/kbrelay/internal/observability"
)

// NewRootCommand builds the kbrelay CLI. Configuration comes from the
// environment (and an optional .env file) and is loaded once before any
// subcommand runs.
func NewRootCommand() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:          "kbrelay",
		Short:        "Relay LINE questions to a NotebookLM notebook",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			observability.Setup(loaded.LogLevel, loaded.LogFormat)
			cfg = loaded
			return nil
		},
	}

	load := func() *config.Config { return cfg }
	root.AddCommand(newServeCommand(load), newAskCommand(load))
	return root
}

func newConnector(cfg *config.Config) domain.Connector {
	log := observability.Logger()
	if cfg.UseMockUpstream {
		log.Info().Str("component", "upstream").Msg("using mock knowledge base")
		return notebooklm.NewMockConnector(0)
	}
	log.Info().Str("component", "upstream").Str("base_url", cfg.UpstreamBaseURL).Msg("using NotebookLM")
	return notebooklm.NewConnector(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
}

func newManager(cfg *config.Config) *session.Manager {
	return session.NewManager(newConnector(cfg), session.Options{
		NotebookID:      cfg.NotebookID,
		CredentialPath:  cfg.AuthFile,
		RefreshInterval: cfg.RefreshInterval,
		PrefetchSources: cfg.PrefetchSources,
		QueueSize:       cfg.QueueSize,
	})
}
