// Package dialogs manages direct message conversations: the paginated
// history log, soft deletes, and the REST transport behind them.
package dialogs

import (
	"maps"

	"github.com/alexjbarnes/netchat/internal/message"
)

// The history operations below are pure. A nil log means the conversation
// has not loaded yet; every operation that changes the log returns a new
// slice and leaves its arguments untouched.

// LoadPage merges a fetched page into log. The first load (log == nil)
// adopts items, dropping repeats. Later pages are older history: items not already
// present are prepended. Loading the same page twice is a no-op.
func LoadPage(log, items []message.Message) []message.Message {
	if log == nil {
		return append(make([]message.Message, 0, len(items)), message.Missing(nil, items)...)
	}

	fresh := message.Missing(message.IDSet(log), items)
	if len(fresh) == 0 {
		return log
	}

	out := make([]message.Message, 0, len(fresh)+len(log))
	out = append(out, fresh...)
	out = append(out, log...)

	return out
}

// ProbeNextPage reports whether a fetch of the following page returned
// anything, i.e. whether older history exists.
func ProbeNextPage(items []message.Message) bool {
	return len(items) > 0
}

// ReceiveNew appends items not already present in log, keeping their
// order. Used after a send to pick up the newest page.
func ReceiveNew(log, items []message.Message) []message.Message {
	fresh := message.Missing(message.IDSet(log), items)
	if len(fresh) == 0 {
		return log
	}

	out := make([]message.Message, 0, len(log)+len(fresh))
	out = append(out, log...)
	out = append(out, fresh...)

	return out
}

// Clear resets the log to the uninitialized state.
func Clear() []message.Message {
	return nil
}

// RemovedSet holds ids of messages pending delete. It is copy on write:
// methods return a new set and never modify the receiver.
type RemovedSet struct {
	ids map[string]struct{}
}

// Has reports whether id is pending delete.
func (r RemovedSet) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of pending deletes.
func (r RemovedSet) Len() int { return len(r.ids) }

// IDs returns the pending ids in no particular order.
func (r RemovedSet) IDs() []string {
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}

	return out
}

// MarkPendingDelete returns removed with id added.
func MarkPendingDelete(removed RemovedSet, id string) RemovedSet {
	next := make(map[string]struct{}, len(removed.ids)+1)
	maps.Copy(next, removed.ids)
	next[id] = struct{}{}

	return RemovedSet{ids: next}
}

// Restore undoes pending deletes. Every pending id is cleared, not only
// the restored one.
func Restore(RemovedSet) RemovedSet {
	return RemovedSet{}
}

// ConfirmRemove physically drops id from log and clears the removed set.
func ConfirmRemove(log []message.Message, _ RemovedSet, id string) ([]message.Message, RemovedSet) {
	if !message.Contains(log, id) {
		return log, RemovedSet{}
	}

	out := make([]message.Message, 0, len(log)-1)

	for _, m := range log {
		if m.ID != id {
			out = append(out, m)
		}
	}

	return out, RemovedSet{}
}
