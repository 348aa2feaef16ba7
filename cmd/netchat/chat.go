package main

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/livechat"
	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Join the public chat; lines typed on stdin are sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := livechat.NewChannel(livechat.ChannelConfig{
				URL:            a.cfg.ChatURL,
				ReconnectDelay: a.cfg.ReconnectDelay,
			}, a.logger)

			sess := livechat.NewSession(ch, livechat.NewReconciler(a.cfg.Mode()), a.logger)

			a.logger.Info("joining chat",
				slog.String("url", a.cfg.ChatURL),
				slog.String("mode", a.cfg.Mode().String()),
			)

			return runChat(cmd.Context(), a, sess)
		},
	}
}

// chatSession is what runChat drives; *livechat.Session implements it.
type chatSession interface {
	Start(ctx context.Context)
	Stop()
	Send(ctx context.Context, text string) error
	Snapshot() livechat.Snapshot
	Updates() <-chan struct{}
}

// runChat streams the reconciled log to a.out and sends stdin lines until
// ctx is done or stdin closes.
func runChat(ctx context.Context, a *app, sess chatSession) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess.Start(ctx)
	defer sess.Stop()

	lines := readLines(ctx, a.in)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var (
			shown  []message.Message
			status = livechat.Status(-1)
		)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sess.Updates():
			}

			snap := sess.Snapshot()

			if snap.Status != status {
				status = snap.Status
				writeStatus(a.out, a.theme, status)
			}

			for _, m := range freshTail(shown, snap.Messages) {
				writeChatMessage(a.out, a.theme, m)
			}

			shown = snap.Messages
		}
	})

	g.Go(func() error {
		for {
			var (
				line string
				ok   bool
			)

			select {
			case <-gctx.Done():
				return nil
			case line, ok = <-lines:
			}

			if !ok {
				cancel()
				return nil
			}

			err := sess.Send(gctx, line)

			switch {
			case err == nil, errors.Is(err, apperrors.ErrEmptyMessage):
			case errors.Is(err, apperrors.ErrNotReady):
				a.notice("not connected yet, message not sent")
			default:
				a.notice("message not sent: %v", err)
			}
		}
	})

	return g.Wait()
}
