package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatSpy struct {
	mu   sync.Mutex
	msgs []string
	ids  []int64
}

func (c *chatSpy) SendText(_ context.Context, chatID int64, text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, chatID)
	c.msgs = append(c.msgs, text)
	return len(c.msgs), nil
}

func (c *chatSpy) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Info("hello", Int("n", 3), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.Equal(t, float64(3), m["n"])
	errVal := m["err"]
	if errVal == nil {
		errVal = m["error"]
	}
	assert.Equal(t, "boom", errVal)
	assert.Contains(t, m["caller"], "logging_test.go")
}

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("nothing")

	nop := Nop()
	assert.False(t, nop.IsZero())
	nop.Error("nothing")
}

func TestChatSinkForwardsAtMinLevel(t *testing.T) {
	spy := &chatSpy{}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, ChatID: -100, MinLevel: "warn", RatePerSec: 50},
	}, spy)
	defer svc.Close()

	log.Info("routine")
	log.Warn("disk <almost> full", String("host", "a"))

	require.Eventually(t, func() bool { return len(spy.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := spy.sent()[0]
	assert.True(t, strings.HasPrefix(msg, "[WARN] disk <almost> full"), msg)
	assert.Contains(t, msg, "- host=a")
	spy.mu.Lock()
	assert.Equal(t, []int64{-100}, spy.ids)
	spy.mu.Unlock()
}

func TestApplySwapsLevel(t *testing.T) {
	svc, log := New(Config{Level: "error"}, nil)
	defer svc.Close()
	assert.False(t, log.Enabled(LevelInfo))

	svc.Apply(Config{Level: "debug"})
	assert.True(t, log.Enabled(LevelDebug))
}

func TestFormatChatJSON(t *testing.T) {
	assert.Equal(t, "[ERROR] x", formatChatJSON([]byte(`{"level":"error","message":"x","time":"t"}`)))
	assert.Equal(t, "not json", formatChatJSON([]byte("not json\n")))
	assert.Len(t, truncate(strings.Repeat("a", 50), 20), 20)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"Warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelInfo,
		"":        LevelInfo,
		"loud":    LevelInfo,
	} {
		assert.Equal(t, want, parseLevel(in, LevelInfo), "level %q", in)
	}
}
