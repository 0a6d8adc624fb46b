package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"mentorhub/pkg/types"
)

// Broadcaster fans an event out to every live subscriber of a channel and
// reports the delivery count. The room router satisfies this.
type Broadcaster interface {
	BroadcastToChannel(role types.Role, scope string, event types.ServerEvent) int
}

// Delivery is the outcome of one notification dispatch. Delivered is false
// when no subscriber was online; that is a success, not an error.
type Delivery struct {
	Delivered  bool `json:"delivered"`
	Recipients int  `json:"recipients"`
}

type queuedNotification struct {
	role  types.Role
	scope string
	event types.NotificationEvent
}

// Dispatcher routes notification events onto role/scope channels. The
// Notify* methods push synchronously; Publish enqueues onto a buffered
// intake drained by a single background goroutine.
type Dispatcher struct {
	broadcaster Broadcaster
	now         func() time.Time

	queue   chan queuedNotification
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewDispatcher creates a dispatcher with the given intake buffer size.
// A non-positive size falls back to 64.
func NewDispatcher(broadcaster Broadcaster, queueSize int) (*Dispatcher, error) {
	if broadcaster == nil {
		return nil, ErrNilBroadcaster
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		broadcaster: broadcaster,
		now:         time.Now,
		queue:       make(chan queuedNotification, queueSize),
		done:        make(chan struct{}),
	}, nil
}

// Start launches the background drain loop. Starting twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.wg.Add(1)
	go d.run()
}

// Stop drains queued notifications and stops the background loop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case queued := <-d.queue:
			d.push(queued.role, queued.scope, queued.event)
		case <-d.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case queued := <-d.queue:
					d.push(queued.role, queued.scope, queued.event)
				default:
					return
				}
			}
		}
	}
}

// Publish enqueues a notification for asynchronous delivery. It never blocks:
// a saturated queue is reported with ErrQueueFull.
func (d *Dispatcher) Publish(role types.Role, scope string, event types.NotificationEvent) error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case d.queue <- queuedNotification{role: role, scope: scope, event: event}:
		return nil
	default:
		log.Printf("notification queue full, dropping %s for %s/%s", event.Type, role, scope)
		return ErrQueueFull
	}
}

// NotifyAdmins delivers to every connected admin.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, event types.NotificationEvent) (Delivery, error) {
	return d.notify(ctx, types.RoleAdmin, types.ChannelScopeGlobal, event)
}

// NotifyCompany delivers to every connection of one company profile.
func (d *Dispatcher) NotifyCompany(ctx context.Context, companyProfileID string, event types.NotificationEvent) (Delivery, error) {
	return d.notify(ctx, types.RoleCompany, companyProfileID, event)
}

// NotifyMentor delivers to every connection of one mentor profile.
func (d *Dispatcher) NotifyMentor(ctx context.Context, mentorProfileID string, event types.NotificationEvent) (Delivery, error) {
	return d.notify(ctx, types.RoleMentor, mentorProfileID, event)
}

// NotifyStudent delivers to every connection of one student profile.
func (d *Dispatcher) NotifyStudent(ctx context.Context, studentProfileID string, event types.NotificationEvent) (Delivery, error) {
	return d.notify(ctx, types.RoleStudent, studentProfileID, event)
}

// Dispatch routes by audience name, as used by the REST dispatch endpoint.
// "admins" needs no target; the per-profile audiences require one.
func (d *Dispatcher) Dispatch(ctx context.Context, audience, targetProfileID string, event types.NotificationEvent) (Delivery, error) {
	switch audience {
	case "admins":
		return d.NotifyAdmins(ctx, event)
	case "company":
		return d.NotifyCompany(ctx, targetProfileID, event)
	case "mentor":
		return d.NotifyMentor(ctx, targetProfileID, event)
	case "student":
		return d.NotifyStudent(ctx, targetProfileID, event)
	default:
		return Delivery{}, ErrUnknownAudience
	}
}

func (d *Dispatcher) notify(ctx context.Context, role types.Role, scope string, event types.NotificationEvent) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	if !types.IsValidID(scope) && scope != types.ChannelScopeGlobal {
		return Delivery{}, types.ErrInvalidAccountID
	}
	recipients := d.push(role, scope, event)
	return Delivery{Delivered: recipients > 0, Recipients: recipients}, nil
}

func (d *Dispatcher) push(role types.Role, scope string, event types.NotificationEvent) int {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now().UTC()
	}
	return d.broadcaster.BroadcastToChannel(role, scope, types.ServerEvent{
		Event: types.EventNotification,
		Data:  event,
	})
}
