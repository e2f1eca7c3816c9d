package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "baubot/internal/runtime/supervisor"
	kit "baubot/internal/transport"
	logx "baubot/pkg/logx"
	"baubot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec bounds outgoing API calls. Zero disables limiting.
	RatePerSec float64
	Burst      int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower than the poll loop.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:     cfg.Token,
		Poller:    &tele.LongPoller{Timeout: timeout},
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, limiter: newLimiter(cfg)}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RatePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RatePerSec))
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
}

// SetLogger swaps the bootstrap logger. Call it before Start.
func (a *Adapter) SetLogger(log logx.Logger) {
	if log.IsZero() {
		return
	}
	a.log = log
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		kind := kit.UpdateMessage
		if strings.HasPrefix(m.Text, "/") {
			kind = kit.UpdateCommand
		}
		msg := &kit.Message{
			ID:     m.ID,
			ChatID: m.Chat.ID,
			Text:   m.Text,
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
		}
		a.sendUpdate(kit.Update{Kind: kind, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || m.Chat == nil {
			return nil
		}
		// Acknowledge right away so the client stops its spinner; the outcome
		// is reported by a separate notice.
		if err := a.bot.Respond(cb, &tele.CallbackResponse{}); err != nil {
			a.log.Debug("callback ack failed", logx.Err(err))
		}
		r := &kit.Reply{
			CallbackID: cb.ID,
			ChatID:     m.Chat.ID,
			MessageID:  m.ID,
			Option:     strings.TrimPrefix(cb.Data, "\f"),
		}
		if cb.Sender != nil {
			r.FromID = cb.Sender.ID
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateReply, Reply: r})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.flushDropped(cap(out))
				return
			case <-ticker.C:
				a.flushDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() can return unexpectedly; restart it while the context is alive.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) flushDropped(chanCap int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", chanCap))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()
	go a.bot.Stop()

	// Never block shutdown for long on a pending getUpdates long-poll.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) Deliver(ctx context.Context, chatID int64, text string, options [][]string) (int, error) {
	rm, err := tgui.Keyboard(options)
	if err != nil {
		return 0, err
	}
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	opt := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if rm != nil {
		opt.ReplyMarkup = rm
	}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, text, opt)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (a *Adapter) RetractOptions(ctx context.Context, chatID int64, messageID int) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	// A nil markup clears the inline keyboard.
	_, err := a.bot.EditReplyMarkup(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}, nil)
	return err
}

func (a *Adapter) Notify(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		ReplyTo:   &tele.Message{ID: messageID, Chat: &tele.Chat{ID: chatID}},
	})
	return err
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	// The bot-wide parse mode is HTML; escape so log text renders verbatim.
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, tgui.Esc(text).String(), &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// UpdateMenuCommands updates Telegram's global command list (setMyCommands).
// It only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		list = append(list, tele.Command{Text: c.Command, Description: d})
		if len(list) >= 100 {
			break
		}
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

func menuHash(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)
