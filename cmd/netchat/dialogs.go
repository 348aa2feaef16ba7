package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/netchat/internal/dialogs"
	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/spf13/cobra"
)

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}

	return id, nil
}

func newDialogsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dialogs",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client().Dialogs(cmd.Context())
			if err != nil {
				return err
			}

			if len(list) == 0 {
				a.notice("no conversations yet")
				return nil
			}

			now := time.Now()
			for _, d := range list {
				writeDialog(a.out, a.theme, d, now)
			}

			return nil
		},
	}
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <userID>",
		Short: "Start a conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			if err := a.client().StartDialog(cmd.Context(), id); err != nil {
				return err
			}

			a.notice("conversation with %d started", id)

			return nil
		},
	}
}

func newMessagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages <userID>",
		Short: "Print the history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			older, _ := cmd.Flags().GetInt("older")
			if older < 0 {
				return fmt.Errorf("invalid --older value: %d", older)
			}

			conv := dialogs.NewConversation(a.client(), id, a.cfg.PageSize, a.logger)
			defer conv.Close()

			if err := conv.Open(cmd.Context()); err != nil {
				return err
			}

			for range older {
				err := conv.LoadOlder(cmd.Context())
				if errors.Is(err, apperrors.ErrNoMorePages) {
					break
				}

				if err != nil {
					return err
				}
			}

			writeConversation(a.out, a.theme, conv.Snapshot(), time.Now())

			return nil
		},
	}

	cmd.Flags().Int("older", 0, "also load this many older pages")

	return cmd
}

const openHelp = `commands:
  <text>          send a message
  /older          load older messages
  /delete <id>    delete a message (can be restored)
  /restore <id>   restore deleted messages
  /remove <id>    drop a deleted message from view
  /refresh        fetch new messages
  /quit           leave the conversation`

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <userID>",
		Short: "Open a conversation interactively",
		Long:  "Open a conversation and read commands from stdin.\n\n" + openHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			conv := dialogs.NewConversation(a.client(), id, a.cfg.PageSize, a.logger)

			return runOpen(cmd.Context(), a, conv)
		},
	}
}

// runOpen drives one visit to a conversation. Request failures are
// reported and the loop carries on; the conversation state is left as it
// was before the failed request.
func runOpen(ctx context.Context, a *app, conv *dialogs.Conversation) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conv.Close()

	if err := conv.Open(ctx); err != nil {
		return err
	}

	writeConversation(a.out, a.theme, conv.Snapshot(), time.Now())

	lines := readLines(ctx, a.in)

	for {
		var (
			line string
			ok   bool
		)

		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}

		if !ok || line == "/quit" {
			return nil
		}

		if line == "" {
			continue
		}

		changed, err := openCommand(ctx, a, conv, line)
		if err != nil {
			a.notice("%v", err)
			continue
		}

		if changed {
			writeConversation(a.out, a.theme, conv.Snapshot(), time.Now())
		}
	}
}

// openCommand runs one interactive line and reports whether the view
// needs redrawing.
func openCommand(ctx context.Context, a *app, conv *dialogs.Conversation, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		if err := conv.Send(ctx, line); err != nil {
			return false, err
		}

		return true, nil
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	needsID := verb == "/delete" || verb == "/restore" || verb == "/remove"
	if needsID && arg == "" {
		return false, fmt.Errorf("%s needs a message id", verb)
	}

	switch verb {
	case "/older":
		if err := conv.LoadOlder(ctx); err != nil {
			return false, err
		}
	case "/refresh":
		if err := conv.Refresh(ctx); err != nil {
			return false, err
		}
	case "/delete":
		if err := conv.Delete(ctx, arg); err != nil {
			return false, err
		}

		a.notice("message was removed, /restore %s to undo", arg)
	case "/restore":
		if err := conv.Restore(ctx, arg); err != nil {
			return false, err
		}

		a.notice("message restored")
	case "/remove":
		conv.ConfirmRemove(arg)
	case "/help":
		fmt.Fprintln(a.out, openHelp)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s, try /help", verb)
	}

	return true, nil
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <userID> <text...>",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			conv := dialogs.NewConversation(a.client(), id, a.cfg.PageSize, a.logger)
			defer conv.Close()

			if err := conv.Send(cmd.Context(), strings.Join(args[1:], " ")); err != nil {
				return err
			}

			snap := conv.Snapshot()
			if n := len(snap.Messages); n > 0 {
				writeDirectMessage(a.out, a.theme, snap.Messages[n-1], snap.Removed, time.Now())
			}

			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <messageID>",
		Short: "Delete a direct message (it can be restored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RemoveMessage(cmd.Context(), args[0]); err != nil {
				return err
			}

			a.notice("message was removed, netchat restore %s to undo", args[0])

			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <messageID>",
		Short: "Restore a deleted direct message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RestoreMessage(cmd.Context(), args[0]); err != nil {
				return err
			}

			a.notice("message restored")

			return nil
		},
	}
}

func newSpamCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "spam <messageID>",
		Short: "Report a direct message as spam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().MarkSpam(cmd.Context(), args[0]); err != nil {
				return err
			}

			a.notice("message reported as spam")

			return nil
		},
	}
}
