package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"baubot/internal/eventbus"
	"baubot/internal/runtime/supervisor"
	logx "baubot/pkg/logx"

	"github.com/robfig/cron/v3"
)

var ErrAlreadyStarted = errors.New("report: already started")

// Sources supplies the gauges a summary reads. Nil funcs are skipped.
type Sources struct {
	Pending    func() int
	Recipients func(ctx context.Context) (int, error)
}

// Summary is one report window.
type Summary struct {
	Since      time.Time
	Until      time.Time
	Pending    int
	Recipients int
	Events     map[string]uint64
	Dropped    uint64
}

type Service struct {
	schedule string
	src      Sources
	bus      eventbus.Bus
	log      logx.Logger
	parser   cron.Parser
	now      func() time.Time

	mu      sync.Mutex
	counts  map[string]uint64
	since   time.Time
	dropped uint64

	c   *cron.Cron
	sup *supervisor.Supervisor
}

func New(schedule string, src Sources, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		schedule: schedule,
		src:      src,
		bus:      bus,
		log:      log.With(logx.String("comp", "report")),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:      time.Now,
		counts:   map[string]uint64{},
	}
}

func (s *Service) Enabled() bool { return s.schedule != "" }

// Start subscribes to the bus and registers the cron entry. It is a no-op
// when the schedule is empty.
func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.log.Debug("reporter disabled")
		return nil
	}
	sched, err := s.parser.Parse(s.schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return ErrAlreadyStarted
	}
	s.since = s.now()
	if s.bus != nil {
		s.dropped = s.bus.Dropped()
	}

	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log), supervisor.WithQuietLifecycle())
	if s.bus != nil {
		events, unsub := s.bus.Subscribe(256,
			eventbus.TypeDelivered, eventbus.TypeUncontactable,
			eventbus.TypeClaimed, eventbus.TypeTimeout, eventbus.TypeOrphaned,
		)
		s.sup.Go0("count_events", func(ctx context.Context) {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-events:
					s.count(ev.Type)
				}
			}
		})
	}

	runCtx := s.sup.Context()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithChain(cron.Recover(cronLogger{s.log})))
	s.c.Schedule(sched, cron.FuncJob(func() {
		s.Report(runCtx)
	}))
	s.c.Start()
	s.log.Info("reporter started", logx.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running report, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, sup := s.c, s.sup
	s.c, s.sup = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	sup.Cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return sup.Wait(ctx)
}

func (s *Service) count(typ string) {
	s.mu.Lock()
	s.counts[typ]++
	s.mu.Unlock()
}

// Report builds and logs the summary for the current window, then starts a
// new window.
func (s *Service) Report(ctx context.Context) Summary {
	now := s.now()
	s.mu.Lock()
	sum := Summary{Since: s.since, Until: now, Events: s.counts}
	s.counts = map[string]uint64{}
	s.since = now
	if s.bus != nil {
		d := s.bus.Dropped()
		sum.Dropped = d - s.dropped
		s.dropped = d
	}
	s.mu.Unlock()

	if s.src.Pending != nil {
		sum.Pending = s.src.Pending()
	}
	fields := []logx.Field{
		logx.Duration("window", sum.Until.Sub(sum.Since)),
		logx.Int("pending", sum.Pending),
		logx.Uint64("delivered", sum.Events[eventbus.TypeDelivered]),
		logx.Uint64("uncontactable", sum.Events[eventbus.TypeUncontactable]),
		logx.Uint64("claimed", sum.Events[eventbus.TypeClaimed]),
		logx.Uint64("timeout", sum.Events[eventbus.TypeTimeout]),
		logx.Uint64("orphaned", sum.Events[eventbus.TypeOrphaned]),
		logx.Uint64("dropped", sum.Dropped),
	}
	if s.src.Recipients != nil {
		n, err := s.src.Recipients(ctx)
		if err != nil {
			s.log.Warn("recipient count failed", logx.Err(err))
		} else {
			sum.Recipients = n
			fields = append(fields, logx.Int("recipients", n))
		}
	}
	s.log.Info("broadcast report", fields...)
	return sum
}

// cronLogger routes cron's internal logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", kv))
}
