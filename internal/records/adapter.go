package records

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/thermo-dash/internal/notify"
)

// Adapter mirrors the backend's record set. Its local copy is only ever
// replaced by backend change notifications, so a failed call leaves it as it was.
type Adapter struct {
	backend  Backend
	notifier notify.Notifier
	now      func() time.Time

	mu      sync.RWMutex
	records []ChemicalRecord
	unsub   func()
}

// NewAdapter subscribes to backend changes and loads the initial set.
func NewAdapter(ctx context.Context, backend Backend, notifier notify.Notifier) (*Adapter, error) {
	a := &Adapter{
		backend:  backend,
		notifier: notifier,
		now:      time.Now,
		records:  []ChemicalRecord{},
	}
	a.unsub = backend.Subscribe(a.replace)

	if err := a.Refresh(ctx); err != nil {
		a.unsub()
		return nil, err
	}
	return a, nil
}

// Records returns a copy of the local record set.
func (a *Adapter) Records() []ChemicalRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ChemicalRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Refresh reloads the full set from the backend.
func (a *Adapter) Refresh(ctx context.Context) error {
	recs, err := a.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("load chemicals: %w", err)
	}
	a.replace(recs)
	return nil
}

// Create validates and stores a new record.
func (a *Adapter) Create(ctx context.Context, rec ChemicalRecord) Result {
	if err := Validate(&rec); err != nil {
		return a.fail("save", err)
	}
	res := a.backend.Create(ctx, rec)
	if !res.Success {
		return a.fail("save", res.Err)
	}
	a.notify(notify.LevelInfo, fmt.Sprintf("saved %s", res.Record.ChemName))
	return res
}

// Update validates and rewrites an existing record.
func (a *Adapter) Update(ctx context.Context, rec ChemicalRecord) Result {
	if err := Validate(&rec); err != nil {
		return a.fail("update", err)
	}
	res := a.backend.Update(ctx, rec)
	if !res.Success {
		return a.fail("update", res.Err)
	}
	a.notify(notify.LevelInfo, fmt.Sprintf("updated %s", res.Record.ChemName))
	return res
}

// Delete removes a record.
func (a *Adapter) Delete(ctx context.Context, rec ChemicalRecord) Result {
	res := a.backend.Delete(ctx, rec)
	if !res.Success {
		return a.fail("delete", res.Err)
	}
	a.notify(notify.LevelInfo, "record deleted")
	return res
}

// Close removes the backend subscription.
func (a *Adapter) Close() {
	if a.unsub != nil {
		a.unsub()
	}
}

func (a *Adapter) replace(recs []ChemicalRecord) {
	if recs == nil {
		recs = []ChemicalRecord{}
	}
	a.mu.Lock()
	a.records = recs
	a.mu.Unlock()
}

func (a *Adapter) fail(op string, err error) Result {
	if err == nil {
		err = fmt.Errorf("%s failed", op)
	}
	msg := fmt.Sprintf("%s failed: %v", op, err)
	if isNotFound(err) {
		msg = fmt.Sprintf("%s failed: record no longer exists", op)
	}
	log.Printf("records: %s", msg)
	a.notify(notify.LevelError, msg)
	return Result{Err: err}
}

func (a *Adapter) notify(level notify.Level, msg string) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(notify.Notification{Time: a.now(), Level: level, Message: msg})
}
