package cmds

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/helpers"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// outcomeError is the error ask exits with for a failed turn. It is never
// nil when the outcome failed, even if no cause was recorded.
func outcomeError(outcome session.Outcome) error {
	if !outcome.Failed {
		return nil
	}
	if outcome.Cause != nil {
		return outcome.Cause
	}
	return transport.ErrExchangeFailed
}

func NewAskCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask the backend a single question and print the answer",
		Long: `Ask submits one question and prints the answer with its sources.

With --interactive, further questions are read line by line from stdin and
sent as follow-up turns of the same conversation. An empty line is ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive, _ := cmd.Flags().GetBool("interactive")
			printEvents, _ := cmd.Flags().GetBool("print-events")
			printTranscript, _ := cmd.Flags().GetBool("transcript")

			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" && !interactive {
				return errors.New("a question is required")
			}

			s, err := loadSettings()
			if err != nil {
				return err
			}
			t, err := newHTTPTransport(s)
			if err != nil {
				return err
			}

			var sessionOptions []session.Option
			if printEvents {
				verbose := viper.GetBool("verbose")
				router, err := events.NewEventRouter(
					events.WithLogger(helpers.NewWatermillLogger(log.Logger, verbose)),
					events.WithVerbose(verbose),
				)
				if err != nil {
					return err
				}
				router.AddHandler("print-events", events.DefaultTopic, router.DumpRawEvents(cmd.ErrOrStderr()))

				ctx, cancel := context.WithCancel(cmd.Context())
				eg, ctx := errgroup.WithContext(ctx)
				eg.Go(func() error {
					return router.Run(ctx)
				})
				defer func() {
					cancel()
					_ = eg.Wait()
					_ = router.Close()
				}()

				select {
				case <-router.Running():
				case <-ctx.Done():
					return errors.Wrap(eg.Wait(), "event router stopped")
				}

				sessionOptions = append(sessionOptions, session.WithSink(router.Sink(events.DefaultTopic)))
			}

			sess := newSession(s, t, sessionOptions...)
			defer sess.Close()

			out := cmd.OutOrStdout()
			ask := func(text string) (session.Outcome, bool, error) {
				turn := sess.Submit(cmd.Context(), text)
				if turn == nil {
					return session.Outcome{}, false, nil
				}
				outcome, err := turn.Wait()
				if err != nil {
					return outcome, true, err
				}
				printReply(out, outcome.Reply, outcome.Sources)
				return outcome, true, nil
			}
			transcript := func() {
				if printTranscript {
					_, _ = fmt.Fprint(out, "\n"+sess.State().History.View())
				}
			}

			var failed error
			if strings.TrimSpace(question) != "" {
				outcome, _, err := ask(question)
				if err != nil {
					return err
				}
				failed = outcomeError(outcome)
			}

			if !interactive {
				transcript()
				return failed
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				_, _ = fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				outcome, submitted, err := ask(scanner.Text())
				if err != nil {
					return err
				}
				if submitted && outcome.Failed {
					log.Warn().Err(outcomeError(outcome)).Msg("Exchange failed")
				}
			}
			_, _ = fmt.Fprintln(out)
			transcript()

			return errors.Wrap(scanner.Err(), "could not read stdin")
		},
	}

	ret.Flags().BoolP("interactive", "i", false, "Read follow-up questions from stdin")
	ret.Flags().Bool("print-events", false, "Print every session event as JSON to stderr")
	ret.Flags().Bool("transcript", false, "Print the whole conversation before exiting")
	return ret
}
