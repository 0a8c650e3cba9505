package comm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/coap.go/pkg/framework"
)

// Registry services registered conns with a single worker.
type Registry struct {
	capacity int
	interval time.Duration

	lock    sync.Mutex
	conns   []*Conn
	runner  *fx.Runner
	cancel  context.CancelFunc
	running bool

	wakeCh chan struct{}
	cycles atomic.Uint64
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once

	errWorkerRunning = errors.New("poll worker already running")
)

// NewRegistry creates a Registry using MaxConnections and WakeInterval from cfg.
func NewRegistry(cfg *Config) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Registry{
		capacity: cfg.MaxConnections,
		interval: cfg.WakeInterval.Duration(),
		wakeCh:   make(chan struct{}, 1),
	}
}

// DefaultRegistry returns the process wide Registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(DefaultConfig())
	})
	return defaultRegistry
}

// Register adds a conn and starts the worker if it's not running.
func (r *Registry) Register(c *Conn) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if c.registry.Load() != nil {
		return ErrAlreadyRegistered
	}
	if len(r.conns) >= r.capacity {
		return ErrRegistryFull
	}
	if !c.registry.CompareAndSwap(nil, r) {
		return ErrAlreadyRegistered
	}
	r.conns = append(r.conns, c)
	if r.runner == nil && !r.running {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.runner = fx.NewRunnerWith(ctx).Go(fx.NamedRun("coap-poll", r))
	}
	return nil
}

// Unregister removes a conn, which should be closed first: an attached
// transport is no longer serviced. It returns false if c is not registered here.
func (r *Registry) Unregister(c *Conn) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for n, conn := range r.conns {
		if conn == c {
			r.conns = append(r.conns[:n:n], r.conns[n+1:]...)
			c.registry.CompareAndSwap(r, nil)
			return true
		}
	}
	return false
}

// Conns returns registered conns, including closed ones.
func (r *Registry) Conns() []*Conn {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*Conn(nil), r.conns...)
}

// Wake triggers a worker cycle.
func (r *Registry) Wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable. It's the worker loop.
func (r *Registry) Run(ctx context.Context) error {
	r.lock.Lock()
	if r.running {
		r.lock.Unlock()
		return errWorkerRunning
	}
	r.running = true
	r.lock.Unlock()
	defer func() {
		r.lock.Lock()
		r.running = false
		r.lock.Unlock()
	}()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	for {
		busy := r.poll()
		timer.Stop()
		var tick <-chan time.Time
		if busy {
			timer.Reset(r.interval)
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wakeCh:
		case <-tick:
		}
	}
}

// poll runs one cycle and reports whether any conn has pending work.
func (r *Registry) poll() bool {
	conns := r.Conns()
	for _, c := range conns {
		if c.readable.Swap(false) {
			c.service()
		}
	}
	var busy bool
	for _, c := range conns {
		c.sweep()
		if c.hasWork() {
			busy = true
		}
	}
	glog.V(4).Infof("poll %d conns, busy=%v", len(conns), busy)
	r.cycles.Add(1)
	pollCycles.Inc()
	return busy
}

// Cycles returns the number of worker cycles run so far.
func (r *Registry) Cycles() uint64 {
	return r.cycles.Load()
}

// Stop stops the worker. It's restarted by the next Register.
func (r *Registry) Stop() error {
	r.lock.Lock()
	runner, cancel := r.runner, r.cancel
	r.runner, r.cancel = nil, nil
	r.lock.Unlock()
	if runner == nil {
		return nil
	}
	cancel()
	return runner.Wait()
}

// CloseAll closes every registered conn.
func (r *Registry) CloseAll() error {
	var errs fx.AggregatedError
	for _, c := range r.Conns() {
		errs.Add(c.Close())
	}
	return errs.Aggregate()
}
