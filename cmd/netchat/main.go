package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/netchat/internal/config"
	"github.com/alexjbarnes/netchat/internal/dialogs"
	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/logging"
	"github.com/alexjbarnes/netchat/internal/state"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		if apperrors.IsTransient(err) {
			fmt.Fprintln(os.Stderr, "this looks temporary, try again")
		}

		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCmd(&app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}).ExecuteContext(ctx)
}

// app carries what every command needs. It is filled in by the root
// command's pre-run hook, after flags are parsed.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *slog.Logger
	theme  theme
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.NewLogger(cfg.Environment, a.errOut)

	settings, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	defer settings.Close()

	night, err := settings.NightMode()
	if err != nil {
		// A corrupt flag falls back to the light theme.
		a.logger.Warn("reading settings", slog.String("error", err.Error()))
	}

	a.theme = plainTheme
	if colorEnabled(a.out) {
		a.theme = themeFor(night)
	}

	return nil
}

func (a *app) client() *dialogs.Client {
	return dialogs.NewClient(dialogs.ClientConfig{
		BaseURL: a.cfg.APIURL,
		APIKey:  a.cfg.APIKey,
		Cookie:  a.cfg.AuthCookie,
	}, a.logger)
}

// notice prints a short user-facing message, the CLI's toast.
func (a *app) notice(format string, args ...any) {
	fmt.Fprintf(a.errOut, "* "+format+"\n", args...)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "netchat",
		Short:         "Terminal client for the social network chat and direct messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = Version
	cmd.SetVersionTemplate("netchat version {{.Version}}\n")
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	cmd.AddCommand(
		newChatCmd(a),
		newDialogsCmd(a),
		newStartCmd(a),
		newMessagesCmd(a),
		newOpenCmd(a),
		newSendCmd(a),
		newDeleteCmd(a),
		newRestoreCmd(a),
		newSpamCmd(a),
		newNightModeCmd(a),
	)

	return cmd
}
