package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun attaches a name to a Runnable for logging.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// ErrForcedExit is returned by Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

// Runner owns a set of background workers sharing one context.
type Runner struct {
	Context context.Context

	running int
	errCh   chan error
	exitCh  chan struct{}
}

// NewRunner creates a runner on context.Background.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner on ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals cancels the context on CtrlC or SIGTERM.
// A second signal makes Wait return ErrForcedExit.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		sig := <-sigCh
		glog.Infof("%v received, stopping", sig)
		cancel()
		<-sigCh
		glog.Error("stop requested again")
		close(r.exitCh)
	}()
	return r
}

// Running returns the number of workers started and not yet collected by Wait.
func (r *Runner) Running() int {
	return r.running
}

// Go starts workers on the runner's context.
func (r *Runner) Go(workers ...Runnable) *Runner {
	for _, w := range workers {
		name := "anonymous"
		if named, ok := w.(Named); ok {
			name = named.Name()
		}
		r.running++
		go func(w Runnable, name string) {
			glog.V(4).Infof("worker %s started", name)
			err := w.Run(r.Context)
			glog.V(4).Infof("worker %s exited: %v", name, err)
			r.errCh <- err
		}(w, name)
	}
	return r
}

// Wait collects the results of all workers.
// Context cancellation is not reported as an error.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for ; r.running > 0; r.running-- {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCloser runs a blocking fn which has no context of its own.
// closer is closed to unblock fn when ctx is done, and in any case before
// returning. The result is ctx.Err() when ctx ended first.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		closer.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		closer.Close()
		return err
	}
}
