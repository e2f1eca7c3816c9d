package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ChatConfig controls forwarding of log records to an operator chat.
type ChatConfig struct {
	Enabled  bool
	ChatID   int64
	MinLevel string
	// RatePerSec caps chat messages; records queued meanwhile are batched.
	RatePerSec int
}

// ChatSender delivers plain text to a chat. The gateway adapter satisfies it.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

const (
	chatQueueCap   = 128
	chatMaxMessage = 3500
	chatMaxField   = 600
	chatSendWait   = 10 * time.Second
)

// chatSink is a zerolog.LevelWriter that queues formatted records and
// forwards them from a single goroutine. Writes never block: when the queue
// is full the record is dropped.
type chatSink struct {
	sender ChatSender
	queue  chan string

	mu       sync.Mutex
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter

	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChatSink(sender ChatSender) *chatSink {
	return &chatSink{
		sender:   sender,
		queue:    make(chan string, chatQueueCap),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.chatID = cfg.ChatID
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter.SetLimit(rate.Limit(rps))
	c.limiter.SetBurst(rps)
	c.mu.Unlock()

	if cfg.Enabled {
		c.once.Do(c.start)
	}
}

func (c *chatSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

func (c *chatSink) close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	skip := c.chatID == 0 || level < c.minLevel
	c.mu.Unlock()
	if skip {
		return len(p), nil
	}
	if msg := formatChatJSON(p); msg != "" {
		select {
		case c.queue <- msg:
		default:
		}
	}
	return len(p), nil
}

func (c *chatSink) run(ctx context.Context) {
	for {
		var first string
		select {
		case <-ctx.Done():
			return
		case first = <-c.queue:
		}

		c.mu.Lock()
		lim := c.limiter
		c.mu.Unlock()
		if err := lim.Wait(ctx); err != nil {
			return
		}
		text := c.batch(first)

		c.mu.Lock()
		chatID := c.chatID
		c.mu.Unlock()
		if chatID == 0 {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, chatSendWait)
		_, _ = c.sender.SendText(sctx, chatID, text)
		cancel()
	}
}

// batch joins first with whatever else is already queued, up to one
// message worth of text.
func (c *chatSink) batch(first string) string {
	var b strings.Builder
	b.WriteString(first)
	for {
		select {
		case next := <-c.queue:
			if b.Len()+len(next)+2 > chatMaxMessage {
				// Put it back for the next message if there is room.
				select {
				case c.queue <- next:
				default:
				}
				return b.String()
			}
			b.WriteString("\n\n")
			b.WriteString(next)
		default:
			return b.String()
		}
	}
}

// formatChatJSON renders one zerolog JSON record as "[LEVEL] message" with
// one "- key=value" line per remaining field, sorted by key.
func formatChatJSON(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, chatMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), chatMaxField))
	}
	return truncate(b.String(), chatMaxMessage)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
