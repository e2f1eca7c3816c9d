package commands

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "baubot/internal/runtime/supervisor"
	"baubot/internal/storage"
	kit "baubot/internal/transport"
	logx "baubot/pkg/logx"
)

// Replier sends a notice as a reply to an existing message.
type Replier interface {
	Notify(ctx context.Context, chatID int64, messageID int, text string) error
}

// ReplyRouter receives option presses.
type ReplyRouter interface {
	HandleInbound(ctx context.Context, option string, chatID int64, messageID int) error
}

// Request is one inbound update being handled.
type Request struct {
	Kind      kit.UpdateKind
	ChatID    int64
	MessageID int
	FromID    int64
	Username  string
	Command   string
	Args      []string
	Option    string
	ReqID     string
	Log       logx.Logger
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Log.IsZero() {
		return r.Log
	}
	return fallback
}

type Command struct {
	Name        string
	Description string
	Handle      HandlerFunc
}

type Options struct {
	Workers  int
	QueueCap int
	// Timeout bounds each handler run.
	Timeout time.Duration
}

// Manager routes updates to command handlers and the reply router on a
// bounded worker pool.
type Manager struct {
	store   storage.Store
	gw      Replier
	replies ReplyRouter
	log     logx.Logger
	opt     Options

	cmds     map[string]Command
	order    []string
	fallback Command

	jobs chan func()
	mu   sync.RWMutex
	sup  *rtsup.Supervisor
}

func New(store storage.Store, gw Replier, replies ReplyRouter, log logx.Logger, opt Options) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = max(2, runtime.NumCPU())
	}
	if opt.QueueCap <= 0 {
		opt.QueueCap = 256
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	m := &Manager{
		store:   store,
		gw:      gw,
		replies: replies,
		log:     log,
		opt:     opt,
		cmds:    map[string]Command{},
		jobs:    make(chan func(), opt.QueueCap),
	}
	m.registerBuiltins()
	return m
}

func (m *Manager) register(c Command) {
	m.cmds[c.Name] = c
	m.order = append(m.order, c.Name)
}

// Menu returns the command list for the platform's command menu.
func (m *Manager) Menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, kit.BotCommand{Command: name, Description: m.cmds[name].Description})
	}
	return out
}

// Supervisor returns the worker pool supervisor while Run is active.
func (m *Manager) Supervisor() *rtsup.Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sup
}

// Run consumes updates until ctx is canceled or updates is closed.
func (m *Manager) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.mu.Lock()
	m.sup = sup
	m.mu.Unlock()

	for i := 0; i < m.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.mu.Lock()
		m.sup = nil
		m.mu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// Route handles one update. Handlers run on the worker pool; a full queue
// rejects commands with a busy notice but runs option presses inline, since
// a caller is waiting on them.
func (m *Manager) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateReply:
		m.routeReply(ctx, up)
	case kit.UpdateCommand, kit.UpdateMessage:
		m.routeMessage(ctx, up)
	}
}

func (m *Manager) routeReply(ctx context.Context, up kit.Update) {
	r := up.Reply
	if r == nil || m.replies == nil {
		return
	}
	req := &Request{
		Kind:      up.Kind,
		ChatID:    r.ChatID,
		MessageID: r.MessageID,
		FromID:    r.FromID,
		Command:   "reply",
		Option:    r.Option,
	}
	m.prepare(req)
	h := func(ctx context.Context, req *Request) error {
		return m.replies.HandleInbound(ctx, req.Option, req.ChatID, req.MessageID)
	}
	final := m.chain(h)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_ = final(ctx, req)
	}
}

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	cmd := m.fallback
	var args []string
	if up.Kind == kit.UpdateCommand {
		name, rest := parseCommand(msg.Text)
		if c, ok := m.cmds[name]; ok {
			cmd = c
			args = rest
		}
	}
	req := &Request{
		Kind:      up.Kind,
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		FromID:    msg.FromID,
		Username:  msg.FromUsername,
		Command:   cmd.Name,
		Args:      args,
	}
	m.prepare(req)
	final := m.chain(cmd.Handle)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_ = m.gw.Notify(ctx, req.ChatID, req.MessageID, "busy, try again")
	}
}

func (m *Manager) prepare(req *Request) {
	req.ReqID = uuid.NewString()
	req.Log = m.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", req.Command),
	)
}

func (m *Manager) chain(h HandlerFunc) HandlerFunc {
	return Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(m.opt.Timeout),
	)
}

func (m *Manager) tryEnqueue(job func()) bool {
	if m.Supervisor() == nil {
		return false
	}
	select {
	case m.jobs <- job:
		return true
	default:
		return false
	}
}

// parseCommand splits "/start@baubot a b" into ("start", ["a","b"]).
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 {
		return "", nil
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), parts[1:]
}
