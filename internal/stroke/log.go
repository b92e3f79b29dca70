package stroke

import (
	"errors"
	"iter"
)

// ErrNotVisible is returned by Replace when the target slot is not on the canvas.
var ErrNotVisible = errors.New("stroke slot is not visible")

type entryKind uint8

const (
	entryAdd entryKind = iota
	entryReplace
)

// entry is one undoable step. An add occupies its own slot; a replace targets
// the slot of an earlier add.
type entry struct {
	kind   entryKind
	slot   int
	stroke Stroke
}

// Log is the ordered history of committed strokes with a history pointer.
// Entries below the pointer are visible; entries at or above it can be redone
// until the next Append or Replace discards them.
//
// A Log is not safe for concurrent use. The session loop owns it and readers
// get copies through Visible.
type Log struct {
	entries []entry
	head    int
	version uint64
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append discards any redo entries and adds s as the newest visible stroke.
func (l *Log) Append(s Stroke) {
	l.truncate()
	l.entries = append(l.entries, entry{kind: entryAdd, slot: len(l.entries), stroke: s})
	l.head = len(l.entries)
	l.version++
}

// Replace records s as the new content of a visible stroke slot. The
// replacement keeps the slot's draw position and is itself undoable.
func (l *Log) Replace(slot int, s Stroke) error {
	if slot < 0 || slot >= l.head || l.entries[slot].kind != entryAdd {
		return ErrNotVisible
	}
	l.truncate()
	l.entries = append(l.entries, entry{kind: entryReplace, slot: slot, stroke: s})
	l.head = len(l.entries)
	l.version++
	return nil
}

func (l *Log) truncate() {
	if l.head < len(l.entries) {
		clear(l.entries[l.head:])
		l.entries = l.entries[:l.head]
	}
}

// Undo hides the newest visible entry. It returns false when there is
// nothing to undo.
func (l *Log) Undo() bool {
	if l.head == 0 {
		return false
	}
	l.head--
	l.version++
	return true
}

// Redo restores the oldest undone entry. It returns false when there is
// nothing to redo.
func (l *Log) Redo() bool {
	if l.head == len(l.entries) {
		return false
	}
	l.head++
	l.version++
	return true
}

// Clear empties the log. Clearing is a hard reset and cannot be undone.
func (l *Log) Clear() {
	l.entries = nil
	l.head = 0
	l.version++
}

// CanUndo reports whether Undo would change the log.
func (l *Log) CanUndo() bool { return l.head > 0 }

// CanRedo reports whether Redo would change the log.
func (l *Log) CanRedo() bool { return l.head < len(l.entries) }

// Len returns the number of entries including redo tombstones.
func (l *Log) Len() int { return len(l.entries) }

// Head returns the history pointer.
func (l *Log) Head() int { return l.head }

// Version increases on every mutation.
func (l *Log) Version() uint64 { return l.version }

// current maps each visible add slot to the index of the entry whose stroke
// it currently shows.
func (l *Log) current() []int {
	shown := make([]int, l.head)
	for i := 0; i < l.head; i++ {
		e := l.entries[i]
		switch e.kind {
		case entryAdd:
			shown[i] = i
		case entryReplace:
			shown[e.slot] = i
			shown[i] = -1
		}
	}
	return shown
}

// VisibleStrokes yields the strokes on the canvas in draw order. The sequence
// is derived from the entries below the history pointer every time it is
// ranged over.
func (l *Log) VisibleStrokes() iter.Seq[Stroke] {
	return func(yield func(Stroke) bool) {
		shown := l.current()
		for i, idx := range shown {
			if idx < 0 || l.entries[i].kind != entryAdd {
				continue
			}
			if !yield(l.entries[idx].stroke) {
				return
			}
		}
	}
}

// Visible collects VisibleStrokes into a new slice.
func (l *Log) Visible() []Stroke {
	out := make([]Stroke, 0, l.head)
	for s := range l.VisibleStrokes() {
		out = append(out, s)
	}
	return out
}

// Last returns the newest visible stroke and its slot.
func (l *Log) Last() (int, Stroke, bool) {
	shown := l.current()
	for i := len(shown) - 1; i >= 0; i-- {
		if shown[i] >= 0 && l.entries[i].kind == entryAdd {
			return i, l.entries[shown[i]].stroke, true
		}
	}
	return -1, Stroke{}, false
}
