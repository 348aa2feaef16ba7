package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alexjbarnes/netchat/internal/dialogs"
	"github.com/alexjbarnes/netchat/internal/livechat"
	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/dustin/go-humanize"
)

// theme holds the ANSI sequences for the selected color scheme.
type theme struct {
	name  string
	muted string
	reset string
}

func themeFor(night bool) theme {
	if night {
		return theme{name: "\x1b[1;36m", muted: "\x1b[90m", reset: "\x1b[0m"}
	}

	return theme{name: "\x1b[1;34m", muted: "\x1b[2m", reset: "\x1b[0m"}
}

// plainTheme renders without escape sequences.
var plainTheme = theme{}

// colorEnabled reports whether w is a terminal and NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	info, err := f.Stat()

	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func (t theme) sender(s string) string { return t.name + s + t.reset }
func (t theme) dim(s string) string    { return t.muted + s + t.reset }

// when renders a timestamp relative to now. Live chat records carry no
// time, so zero renders empty.
func when(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}

	return humanize.RelTime(ts, now, "ago", "from now")
}

func writeChatMessage(w io.Writer, t theme, m message.Message) {
	fmt.Fprintf(w, "%s: %s\n", t.sender(m.Sender), m.Body)
}

func writeStatus(w io.Writer, t theme, st livechat.Status) {
	fmt.Fprintln(w, t.dim("-- "+st.String()))
}

// writeDirectMessage prints one history entry. Pending deletes render as
// a placeholder.
func writeDirectMessage(w io.Writer, t theme, m message.Message, removed dialogs.RemovedSet, now time.Time) {
	if removed.Has(m.ID) {
		fmt.Fprintf(w, "%s\n", t.dim("[deleted "+m.ID+"] restore or remove"))
		return
	}

	read := ""
	if m.Viewed {
		read = " (read)"
	}

	fmt.Fprintf(w, "%s %s: %s %s\n",
		t.dim(when(m.Timestamp, now)),
		t.sender(m.Sender),
		m.Body,
		t.dim("["+m.ID+"]"+read),
	)
}

func writeConversation(w io.Writer, t theme, snap dialogs.Snapshot, now time.Time) {
	if snap.HasNext {
		fmt.Fprintln(w, t.dim("-- older messages available"))
	}

	for _, m := range snap.Messages {
		writeDirectMessage(w, t, m, snap.Removed, now)
	}
}

func writeDialog(w io.Writer, t theme, d dialogs.Dialog, now time.Time) {
	unread := ""
	if d.HasNewMessages {
		unread = fmt.Sprintf(" (%d new)", d.NewMessagesCount)
	}

	fmt.Fprintf(w, "%d\t%s%s\t%s\n", d.ID, t.sender(d.UserName), unread, t.dim(when(d.LastActivity, now)))
}

// freshTail returns the part of next a printer has not shown yet, given
// that it last showed prev. The live log may re-id or drop its head, so
// the overlap is found by content: the longest suffix of prev that is a
// prefix of next.
func freshTail(prev, next []message.Message) []message.Message {
	for k := min(len(prev), len(next)); k > 0; k-- {
		if message.Equal(prev[len(prev)-k:], next[:k]) {
			return next[k:]
		}
	}

	return next
}

// readLines feeds trimmed stdin lines into a channel until EOF or ctx is
// done. The scanner cannot be interrupted, so the goroutine may outlive
// ctx until the next line arrives.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}
