package cmds

import (
	"context"

	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/helpers"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/ui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your documents in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			t, err := newHTTPTransport(s)
			if err != nil {
				return err
			}

			// the UI owns the terminal, logs only go to --log-file
			logConfig := LogConfigFromViper()
			logConfig.Quiet = true
			if err := InitLogger(logConfig); err != nil {
				return err
			}

			verbose := viper.GetBool("verbose")
			router, err := events.NewEventRouter(
				events.WithLogger(helpers.NewWatermillLogger(log.Logger, verbose)),
				events.WithVerbose(verbose),
			)
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()

			if s.LogEvents {
				router.AddSessionHandler("log-session-events", events.DefaultTopic, events.LogSessionEvent)
			} else {
				router.AddSessionHandler("trace-session-events", events.DefaultTopic,
					func(ctx context.Context, e *events.SessionEvent) error {
						log.Trace().Object("event", e).Msg("session event")
						return nil
					})
			}

			sess := newSession(s, t, session.WithSink(router.Sink(events.DefaultTopic)))

			noAltScreen, _ := cmd.Flags().GetBool("no-alt-screen")
			mouse, _ := cmd.Flags().GetBool("mouse")
			glamourStyle, _ := cmd.Flags().GetString("glamour-style")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			eg, ctx := errgroup.WithContext(ctx)

			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				defer sess.Close()

				select {
				case <-router.Running():
				case <-ctx.Done():
					return nil
				}

				return ui.Run(ctx, sess, ui.RunOptions{
					AltScreen: !noAltScreen,
					Mouse:     mouse,
					Model: []ui.Option{
						ui.WithTitle("RAG CHAT · "+t.BaseURL),
						ui.WithHealthCheck(t.Health),
						ui.WithGlamourStyle(glamourStyle),
					},
				})
			})

			return eg.Wait()
		},
	}

	ret.Flags().Bool("no-alt-screen", false, "Render inline instead of using the alternate screen")
	ret.Flags().Bool("mouse", false, "Enable mouse wheel scrolling")
	ret.Flags().String("glamour-style", "auto", "Markdown style for replies (auto, dark, light, notty)")
	return ret
}
