package ui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type RunOptions struct {
	AltScreen bool
	Mouse     bool
	Model     []Option
}

// Run blocks until the user quits, ctx is cancelled or the session is closed.
func Run(ctx context.Context, s *session.Session, runOptions RunOptions) error {
	m := newModel(ctx, s, runOptions.Model...)
	defer m.unsubscribe()

	options := []tea.ProgramOption{
		tea.WithContext(ctx),
	}
	if runOptions.Mouse {
		options = append(options, tea.WithMouseCellMotion())
	}
	if runOptions.AltScreen {
		options = append(options, tea.WithAltScreen())
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		tty, err := openTerminalInput()
		if err != nil {
			return errors.Wrap(err, "stdin is not a terminal and no controlling terminal is available")
		}
		defer func() {
			_ = tty.Close()
		}()
		options = append(options, tea.WithInput(tty))
	}

	p := tea.NewProgram(m, options...)
	_, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			log.Debug().Msg("chat UI stopped by context")
			return nil
		}
		return errors.Wrap(err, "chat UI failed")
	}
	return nil
}
