package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/kbrelay/internal/app/bridge"
	"github.com/PabloGalante/kbrelay/internal/app/prompt"
	"github.com/PabloGalante/kbrelay/internal/config"
)

func newAskCommand(load func() *config.Config) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Open a session, ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			if err := cfg.Validate(false); err != nil {
				return err
			}

			question := strings.TrimSpace(strings.Join(args, " "))
			text := question
			if !raw {
				text = prompt.NewPolicy(cfg.DetailTriggers).Build(question).Prompt
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			mgr := newManager(cfg)
			go func() { _ = mgr.Run(ctx) }()

			select {
			case <-mgr.Ready():
			case <-ctx.Done():
				return ctx.Err()
			}

			answer, err := bridge.New(mgr).SubmitAndWait(ctx, text, cfg.QueryTimeout)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "send the question without response-style instructions")
	return cmd
}
