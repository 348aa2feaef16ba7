package livechat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// LogCap is the maximum number of messages kept in the public chat log.
const LogCap = 100

const (
	// smallBatchMax is the largest batch accepted wholesale into an empty
	// log even when it matches the log.
	smallBatchMax = 3

	// diffRuneBase is the first rune used to encode distinct messages for
	// the diff reconciler. Private use area, so it never collides with
	// characters that carry meaning to the diff cleanup passes.
	diffRuneBase = 0xE000
)

// Case is the outcome of comparing the current log against an incoming
// batch. The caller appends based on the case.
type Case int

const (
	// CaseNone means the batch carries nothing new. The log is returned
	// unmodified.
	CaseNone Case = iota

	// CaseEmptyLog means the log is empty and the whole batch is new.
	CaseEmptyLog

	// CaseSingle means the log is non-empty and the batch holds exactly one
	// message, which is treated as new.
	CaseSingle

	// CaseWindowSlide means the log is full and the server sent the full
	// window plus one. The whole batch is appended and the result trimmed,
	// which shifts the window by one.
	CaseWindowSlide

	// CaseSuffix means the batch differs from the log. Only the part of
	// the batch beyond the current log length is new.
	CaseSuffix
)

func (c Case) String() string {
	switch c {
	case CaseNone:
		return "none"
	case CaseEmptyLog:
		return "empty-log"
	case CaseSingle:
		return "single"
	case CaseWindowSlide:
		return "window-slide"
	case CaseSuffix:
		return "suffix"
	default:
		return "case(" + strconv.Itoa(int(c)) + ")"
	}
}

// Mode selects the reconciliation strategy.
type Mode int

const (
	// ModeHeuristic matches the batch shapes the upstream chat handler is
	// known to send.
	ModeHeuristic Mode = iota

	// ModeDiff computes a positional diff between log and batch and
	// appends only what follows the last common element.
	ModeDiff
)

func (m Mode) String() string {
	if m == ModeDiff {
		return "diff"
	}

	return "heuristic"
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "heuristic":
		return ModeHeuristic, nil
	case "diff":
		return ModeDiff, nil
	default:
		return ModeHeuristic, fmt.Errorf("unknown reconcile mode %q", s)
	}
}

// Decide classifies an incoming batch against the current log. Pure, no
// allocation beyond the comparison.
func Decide(current, incoming []message.Message) Case {
	empty := len(current) == 0

	switch {
	case empty && (!message.Equal(current, incoming) || len(incoming) <= smallBatchMax):
		return CaseEmptyLog
	case !empty && len(incoming) == 1:
		return CaseSingle
	case len(current) == LogCap && len(incoming) == LogCap+1:
		return CaseWindowSlide
	case !empty && !message.Equal(current, incoming):
		return CaseSuffix
	default:
		return CaseNone
	}
}

// Reconciler folds overlapping batches from the live channel into the
// capped log. It never mutates its inputs: a changed log is always a new
// slice.
type Reconciler struct {
	mode   Mode
	assign func([]message.Message) []message.Message
}

// NewReconciler creates a Reconciler for the given mode.
func NewReconciler(mode Mode) *Reconciler {
	return &Reconciler{mode: mode, assign: message.AssignIDs}
}

// Mode returns the strategy in use.
func (r *Reconciler) Mode() Mode { return r.mode }

// Reconcile merges incoming into current and reports whether the log
// changed. When it did not, current is returned as is.
func (r *Reconciler) Reconcile(current, incoming []message.Message) ([]message.Message, bool) {
	if len(incoming) == 0 {
		return current, false
	}

	if r.mode == ModeDiff {
		return r.reconcileDiff(current, incoming)
	}

	switch Decide(current, incoming) {
	case CaseEmptyLog, CaseSingle, CaseWindowSlide:
		return r.appendFresh(current, incoming), true
	case CaseSuffix:
		if len(incoming) <= len(current) {
			return current, false
		}
		// Trimming only matters for batches longer than the cap, which the
		// server does not send outside the window-slide shape.
		return r.appendFresh(current, incoming[len(current):]), true
	default:
		return current, false
	}
}

// reconcileDiff encodes every distinct message as one rune and diffs the
// two sequences. Everything in the batch after the last equal run is new.
func (r *Reconciler) reconcileDiff(current, incoming []message.Message) ([]message.Message, bool) {
	if len(incoming) == 0 || message.Equal(current, incoming) {
		return current, false
	}

	if len(current) == 0 {
		return r.appendFresh(current, incoming), true
	}

	enc := newRuneEncoder()
	a := enc.encode(current)
	b := enc.encode(incoming)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(a, b, false)

	pos, lastEqualEnd := 0, 0

	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
			lastEqualEnd = pos
		case diffmatchpatch.DiffInsert:
			pos += n
		case diffmatchpatch.DiffDelete:
		}
	}

	if lastEqualEnd >= len(incoming) {
		return current, false
	}

	return r.appendFresh(current, incoming[lastEqualEnd:]), true
}

// appendFresh assigns ids to fresh, appends it to a copy of current, and
// trims to LogCap keeping the newest entries.
func (r *Reconciler) appendFresh(current, fresh []message.Message) []message.Message {
	out := make([]message.Message, 0, len(current)+len(fresh))
	out = append(out, current...)
	out = append(out, r.assign(fresh)...)

	return message.TrimOldest(out, LogCap)
}

// runeEncoder maps message content to runes so identical messages share a
// symbol across both sequences.
type runeEncoder struct {
	symbols map[string]rune
}

func newRuneEncoder() *runeEncoder {
	return &runeEncoder{symbols: make(map[string]rune)}
}

func (e *runeEncoder) encode(batch []message.Message) []rune {
	out := make([]rune, len(batch))

	for i, m := range batch {
		key := contentKey(m)

		sym, ok := e.symbols[key]
		if !ok {
			sym = rune(diffRuneBase + len(e.symbols))
			e.symbols[key] = sym
		}

		out[i] = sym
	}

	return out
}

func contentKey(m message.Message) string {
	return strconv.FormatInt(m.SenderID, 10) + "\x00" +
		m.Sender + "\x00" +
		m.Body + "\x00" +
		m.Photo + "\x00" +
		strconv.FormatInt(m.Timestamp.UnixNano(), 10)
}
