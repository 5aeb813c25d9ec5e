// Package connectivity tracks whether the backend is likely reachable. Link
// transitions flip the state at once; an active probe confirms it every
// interval and after every link-up.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"partymaker/internal/config"
	"partymaker/internal/logging"
	"partymaker/internal/neterr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultInterval = 30 * time.Second

var ErrStarted = errors.New("connectivity monitor already started")

// Prober is satisfied by *transport.Client.
type Prober interface {
	Probe(ctx context.Context, target string, timeout time.Duration) error
}

// LinkWatcher reports OS-level link transitions until ctx is done.
type LinkWatcher interface {
	Watch(ctx context.Context, fn func(up bool)) error
}

type Options struct {
	Prober   Prober
	Target   string
	Timeout  time.Duration
	Interval time.Duration
	// Link is optional; without it only the periodic probe runs.
	Link       LinkWatcher
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

func OptionsFromConfig(cfg config.Config, p Prober) Options {
	return Options{
		Prober:   p,
		Target:   cfg.ProbeURL,
		Timeout:  cfg.ProbeTimeout,
		Interval: cfg.ProbeInterval,
		Link:     NewInterfaceWatcher(0),
	}
}

type Monitor struct {
	opts Options
	log  *slog.Logger
	up   prometheus.Gauge

	mu     sync.Mutex
	online bool
	// gen advances on every probe start and link event; a probe result is
	// applied only if nothing newer began meanwhile.
	gen       uint64
	lastErr   neterr.Kind
	hasErr    bool
	listeners map[int]func(bool)
	nextID    int
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor starts optimistic: Current reports true until a probe or link
// event says otherwise.
func NewMonitor(opts Options) *Monitor {
	if opts.Target == "" {
		opts.Target = config.DefaultProbeURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = logging.For("connectivity")
	}
	up := promauto.With(opts.Registerer).NewGauge(prometheus.GaugeOpts{
		Name: "partymaker_network_up",
		Help: "1 when the last connectivity check succeeded.",
	})
	up.Set(1)
	return &Monitor{
		opts:      opts,
		log:       log,
		up:        up,
		online:    true,
		listeners: map[int]func(bool){},
	}
}

// Start runs the first probe in the background and keeps checking until
// Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Refresh(ctx)
		t := time.NewTicker(m.opts.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Refresh(ctx)
			}
		}
	}()

	if m.opts.Link != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			err := m.opts.Link.Watch(ctx, func(up bool) { m.linkChanged(ctx, up) })
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn("link watcher stopped", "err", err)
			}
		}()
	}
	return nil
}

// Stop halts the background checks and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// OnChange registers fn for state transitions. fn runs on the monitor's
// goroutine and must not block.
func (m *Monitor) OnChange(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) Current() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastError reports the kind of the most recent failed check. ok is false
// once a check has succeeded since.
func (m *Monitor) LastError() (kind neterr.Kind, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr, m.hasErr
}

// Refresh probes now and returns the resulting state. A probe overtaken by
// a newer probe or link event leaves the state alone.
func (m *Monitor) Refresh(ctx context.Context) bool {
	if m.opts.Prober == nil {
		return m.Current()
	}
	gen := m.begin()
	err := m.opts.Prober.Probe(ctx, m.opts.Target, m.opts.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			return m.Current()
		}
		kind := neterr.Classify(err)
		m.log.Debug("probe failed", "target", m.opts.Target, "kind", kind, "err", err)
		if !m.apply(gen, false, kind, true) {
			return m.Current()
		}
		return false
	}
	if !m.apply(gen, true, neterr.Unknown, false) {
		return m.Current()
	}
	return true
}

func (m *Monitor) linkChanged(ctx context.Context, up bool) {
	gen := m.begin()
	if !up {
		m.log.Info("link down")
		m.apply(gen, false, neterr.NoNetwork, true)
		return
	}
	m.log.Info("link up, probing")
	m.apply(gen, true, neterr.Unknown, false)
	m.Refresh(ctx)
}

func (m *Monitor) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// apply records a check result unless a newer check has started. It reports
// whether the result was kept.
func (m *Monitor) apply(gen uint64, online bool, kind neterr.Kind, hasErr bool) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.log.Debug("dropping stale check result", "online", online)
		return false
	}
	changed := m.online != online
	m.online = online
	m.lastErr, m.hasErr = kind, hasErr
	var fns []func(bool)
	if changed {
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
	}
	if online {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
	m.mu.Unlock()

	if !changed {
		return true
	}
	m.log.Info("connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
	return true
}
