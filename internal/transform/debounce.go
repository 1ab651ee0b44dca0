package transform

import (
	"time"

	"github.com/sweeney/sk-sensor/internal/flow"
	"github.com/sweeney/sk-sensor/internal/logic"
	"github.com/sweeney/sk-sensor/internal/scheduler"
)

// Debounce emits a value only after it has held for the settle window.
// A one-shot task re-checks the pending value when the window expires, so a
// single input change is enough; the upstream does not have to keep repeating it.
type Debounce[T comparable] struct {
	flow.Producer[T]
	loop  *scheduler.Loop
	d     *logic.LevelDebouncer[T]
	check *scheduler.Task
}

// NewDebounce creates a debounce stage driven by loop.
func NewDebounce[T comparable](loop *scheduler.Loop, window time.Duration) *Debounce[T] {
	return &Debounce[T]{loop: loop, d: logic.NewLevelDebouncer[T](window)}
}

// Set feeds a new input value.
func (db *Debounce[T]) Set(v T) {
	db.process(v)
}

func (db *Debounce[T]) process(v T) {
	out, ok := db.d.Process(v, db.loop.Now())
	db.cancelCheck()
	if ok {
		db.Emit(out)
		return
	}

	deadline, pending := db.d.Deadline()
	if !pending {
		return
	}
	var task *scheduler.Task
	task = db.loop.At(deadline, func() {
		if db.check != task {
			return
		}
		db.check = nil
		if v, ok := db.d.Pending(); ok {
			db.process(v)
		}
	})
	db.check = task
}

func (db *Debounce[T]) cancelCheck() {
	if db.check != nil {
		db.check.Cancel()
		db.check = nil
	}
}
