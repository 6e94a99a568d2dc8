package control

import (
	"reflect"
	"sync"
	"time"

	"github.com/hdds-team/hdds/internal/xerr"
)

// Condition is a broadcastable, level-triggered signal: once Signal is
// called every current and future waiter observes it as triggered until
// Reset clears it. Implemented with the "close-and-replace channel"
// idiom so an arbitrary number of goroutines can select on C()
// concurrently without a dedicated fan-out goroutine per waiter.
type Condition struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewCondition constructs an untriggered Condition.
func NewCondition() *Condition {
	return &Condition{ch: make(chan struct{})}
}

// Signal marks the condition triggered, waking every current waiter.
func (c *Condition) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ch:
		// already triggered
	default:
		close(c.ch)
	}
}

// Reset clears the triggered state.
func (c *Condition) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ch:
		c.ch = make(chan struct{})
	default:
	}
}

// Triggered reports the current state without consuming it.
func (c *Condition) Triggered() bool {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (c *Condition) recvChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// WaitSet aggregates guard and status conditions so a caller can block
// until any one of them triggers (spec §6 "attach/detach status and
// guard conditions to a wait-set, wait on a wait-set with timeout").
type WaitSet struct {
	mu         sync.Mutex
	conditions map[Handle]*Condition
}

func newWaitSet() *WaitSet {
	return &WaitSet{conditions: make(map[Handle]*Condition)}
}

func (w *WaitSet) attach(h Handle, c *Condition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conditions[h] = c
}

func (w *WaitSet) detach(h Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.conditions[h]
	delete(w.conditions, h)
	return ok
}

// wait blocks until any attached condition triggers or timeout elapses,
// returning the handles of every condition that is triggered at that
// moment (DDS wait-sets report every satisfied condition, not just the
// one that woke the call).
func (w *WaitSet) wait(timeout time.Duration) ([]Handle, error) {
	w.mu.Lock()
	cases := make([]reflect.SelectCase, 0, len(w.conditions)+1)
	handles := make([]Handle, 0, len(w.conditions))
	for h, c := range w.conditions {
		handles = append(handles, h)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c.recvChan())})
	}
	w.mu.Unlock()

	if len(handles) == 0 {
		return nil, xerr.Wrap(xerr.InvalidState, nil)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(handles) {
		return nil, xerr.Wrap(xerr.WouldBlock, nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var triggered []Handle
	for h, c := range w.conditions {
		if c.Triggered() {
			triggered = append(triggered, h)
		}
	}
	return triggered, nil
}

// CreateWaitSet constructs an empty wait-set.
func (m *Manager) CreateWaitSet() Handle {
	return m.waitsets.insert(newWaitSet())
}

// DestroyWaitSet releases a wait-set. Conditions attached to it are
// unaffected; they simply stop being observed by this wait-set.
func (m *Manager) DestroyWaitSet(h Handle) error {
	if _, ok := m.waitsets.release(h); !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}
	return nil
}

// CreateGuardCondition constructs a condition the caller triggers
// manually (spec §6 "guard conditions"), independent of any participant.
func (m *Manager) CreateGuardCondition() Handle {
	return m.guards.insert(NewCondition())
}

// TriggerGuardCondition signals a guard condition, waking any wait-set it
// is attached to.
func (m *Manager) TriggerGuardCondition(h Handle) error {
	c, err := m.guards.get(h)
	if err != nil {
		return err
	}
	c.Signal()
	return nil
}

// ResetGuardCondition clears a guard condition's triggered state.
func (m *Manager) ResetGuardCondition(h Handle) error {
	c, err := m.guards.get(h)
	if err != nil {
		return err
	}
	c.Reset()
	return nil
}

// DestroyGuardCondition releases a guard condition.
func (m *Manager) DestroyGuardCondition(h Handle) error {
	if _, ok := m.guards.release(h); !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}
	return nil
}

// AttachGuardCondition attaches a guard condition to a wait-set.
func (m *Manager) AttachGuardCondition(waitset, guard Handle) error {
	ws, err := m.waitsets.get(waitset)
	if err != nil {
		return err
	}
	c, err := m.guards.get(guard)
	if err != nil {
		return err
	}
	ws.attach(guard, c)
	return nil
}

// AttachReaderStatusCondition attaches reader's DATA_AVAILABLE status
// condition (signalled whenever a sample is delivered) to a wait-set.
func (m *Manager) AttachReaderStatusCondition(waitset, reader Handle) error {
	ws, err := m.waitsets.get(waitset)
	if err != nil {
		return err
	}
	re, err := m.reader(reader)
	if err != nil {
		return err
	}
	ws.attach(reader, re.statusCond)
	return nil
}

// DetachCondition detaches any condition (guard or reader status)
// previously attached under h from waitset.
func (m *Manager) DetachCondition(waitset, h Handle) error {
	ws, err := m.waitsets.get(waitset)
	if err != nil {
		return err
	}
	if !ws.detach(h) {
		return xerr.Wrap(xerr.NotFound, nil)
	}
	return nil
}

// Wait blocks until any condition attached to waitset triggers, or
// timeout elapses (spec §6 "wait on a wait-set with timeout"). Returns
// the handles of every triggered condition.
func (m *Manager) Wait(waitset Handle, timeout time.Duration) ([]Handle, error) {
	ws, err := m.waitsets.get(waitset)
	if err != nil {
		return nil, err
	}
	return ws.wait(timeout)
}
