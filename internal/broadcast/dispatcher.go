package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"baubot/internal/eventbus"
	logx "baubot/pkg/logx"
)

const (
	defaultPromptTimeout = 60 * time.Second
	defaultIOTimeout     = 10 * time.Second
)

type Options struct {
	// DefaultTimeout applies to prompts that carry no timeout of their own.
	DefaultTimeout time.Duration
	// MaxPending caps outstanding replies. Zero means unbounded.
	MaxPending int
	// IOTimeout bounds gateway calls made after the requesting context may be gone
	// (timeout notices, option retraction).
	IOTimeout time.Duration

	Bus eventbus.Bus
	Log logx.Logger
}

// Dispatcher fans a Request out to its recipients. It owns the correlation
// store; Router shares it for inbound replies.
type Dispatcher struct {
	dir   Directory
	gw    Gateway
	store *Store
	bus   eventbus.Bus
	log   logx.Logger

	defaultTimeout time.Duration
	ioTimeout      time.Duration
	maxPending     int64
	reserved       atomic.Int64
}

func NewDispatcher(dir Directory, gw Gateway, opt Options) *Dispatcher {
	d := &Dispatcher{
		dir:            dir,
		gw:             gw,
		store:          NewStore(),
		bus:            opt.Bus,
		log:            opt.Log,
		defaultTimeout: opt.DefaultTimeout,
		ioTimeout:      opt.IOTimeout,
		maxPending:     int64(opt.MaxPending),
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	if d.defaultTimeout <= 0 {
		d.defaultTimeout = defaultPromptTimeout
	}
	if d.ioTimeout <= 0 {
		d.ioTimeout = defaultIOTimeout
	}
	return d
}

// Pending returns the number of outstanding replies.
func (d *Dispatcher) Pending() int { return d.store.Len() }

// Router returns the inbound half bound to this dispatcher's store.
func (d *Dispatcher) Router() *Router {
	return &Router{store: d.store, gw: d.gw, bus: d.bus, log: d.log}
}

// Dispatch delivers req to every recipient concurrently. The returned channel
// yields one PendingResponse per recipient that was unreachable or that
// solicited a reply, in completion order, and is closed once every recipient
// is done. Successful delivery without a prompt yields nothing.
//
// Canceling ctx abandons outstanding prompts: their options are retracted and
// no response is emitted for them.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) <-chan PendingResponse {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	out := make(chan PendingResponse, len(req.Recipients))
	log := d.log.With(logx.String("request_id", req.ID), logx.String("sender", req.Sender))
	log.Debug("dispatch", logx.Int("recipients", len(req.Recipients)), logx.Bool("prompt", !req.Prompt.Empty()))

	var wg sync.WaitGroup
	for _, r := range req.Recipients {
		wg.Add(1)
		go func(r Recipient) {
			defer wg.Done()
			if o, ok := d.serve(ctx, log, req, r); ok {
				out <- PendingResponse{Recipient: r.Name, Outcome: o}
			}
		}(r)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (d *Dispatcher) serve(ctx context.Context, log logx.Logger, req Request, r Recipient) (Outcome, bool) {
	log = log.With(logx.String("recipient", r.Name))
	prompted := r.WantsReply && !req.Prompt.Empty()

	chatID, ok := d.dir.Resolve(ctx, r.Name)
	if !ok {
		log.Debug("recipient not registered")
		d.publish(eventbus.TypeUncontactable, req, r.Name, 0, 0, "", "unknown recipient")
		return Fail(Uncontactable), true
	}

	if prompted {
		if !d.reserve() {
			log.Warn("pending reply limit reached", logx.Int64("max_pending", d.maxPending))
			d.publish(eventbus.TypeUncontactable, req, r.Name, chatID, 0, "", "max pending")
			return Fail(Uncontactable), true
		}
		defer d.reserved.Add(-1)
	}

	var options [][]string
	if prompted {
		options = req.Prompt.Options
	}
	msgID, err := d.gw.Deliver(ctx, chatID, req.Text, options)
	if err != nil {
		log.Warn("delivery failed", logx.Int64("chat_id", chatID), logx.Err(err))
		d.publish(eventbus.TypeUncontactable, req, r.Name, chatID, 0, "", err.Error())
		return Fail(Uncontactable), true
	}
	d.publish(eventbus.TypeDelivered, req, r.Name, chatID, msgID, "", "")
	if !prompted {
		return Outcome{}, false
	}

	timeout := req.Prompt.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	key := MakeKey(chatID, msgID)
	sl := newSlot()
	if d.store.Insert(key, sl) {
		log.Error("correlation key reused while outstanding", logx.String("key", key.String()))
	}
	log.Trace("awaiting reply", logx.String("key", key.String()), logx.Duration("timeout", timeout))

	timer := time.AfterFunc(timeout, func() {
		d.expire(log, req, r.Name, key, timeout)
	})

	select {
	case o := <-sl:
		return o, true
	case <-ctx.Done():
	}

	// The caller is gone. Claim the key so the timer becomes a no-op, unless
	// someone else already did and is about to fill the slot.
	if _, claimed := d.store.Remove(key); !claimed {
		return <-sl, true
	}
	timer.Stop()
	log.Debug("prompt abandoned", logx.Err(ctx.Err()))
	ioctx, cancel := context.WithTimeout(context.Background(), d.ioTimeout)
	defer cancel()
	if err := d.gw.RetractOptions(ioctx, chatID, msgID); err != nil {
		log.Debug("retract options failed", logx.Err(err))
	}
	return Outcome{}, false
}

// expire runs when a prompt's timer fires. It only acts if it wins the claim.
func (d *Dispatcher) expire(log logx.Logger, req Request, name string, key Key, timeout time.Duration) {
	sl, ok := d.store.Remove(key)
	if !ok {
		return
	}
	sl.resolve(Fail(Timeout))
	d.publish(eventbus.TypeTimeout, req, name, key.ChatID(), key.MessageID(), "", "")
	log.Debug("reply timed out", logx.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), d.ioTimeout)
	defer cancel()
	if err := d.gw.RetractOptions(ctx, key.ChatID(), key.MessageID()); err != nil {
		log.Debug("retract options failed", logx.Err(err))
	}
	if err := d.gw.Notify(ctx, key.ChatID(), key.MessageID(), timeoutNotice(timeout)); err != nil {
		log.Debug("timeout notice failed", logx.Err(err))
	}
}

func (d *Dispatcher) reserve() bool {
	if d.maxPending <= 0 {
		return true
	}
	if d.reserved.Add(1) > d.maxPending {
		d.reserved.Add(-1)
		return false
	}
	return true
}

func (d *Dispatcher) publish(typ string, req Request, name string, chatID int64, msgID int, option, reason string) {
	eventbus.Publish(d.bus, typ, eventbus.RecipientEvent{
		RequestID: req.ID,
		Recipient: name,
		ChatID:    chatID,
		MessageID: msgID,
		Option:    option,
		Reason:    reason,
	})
}
