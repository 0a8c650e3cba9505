package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// loadStats accumulates results of a load run.
type loadStats struct {
	lock     sync.Mutex
	ok       int64
	failed   int64
	rejected int64
	received uint64
	latency  time.Duration
}

func (s *loadStats) record(resp *comm.Response, elapsed time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.received += uint64(len(resp.Payload))
	if !resp.Last {
		return
	}
	if resp.Err != nil || !resp.Code.IsSuccess() {
		s.failed++
		return
	}
	s.ok++
	s.latency += elapsed
}

func (s *loadStats) reject() {
	s.lock.Lock()
	s.rejected++
	s.lock.Unlock()
}

func (s *loadStats) print(w io.Writer, elapsed time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var avg time.Duration
	if s.ok > 0 {
		avg = s.latency / time.Duration(s.ok)
	}
	fmt.Fprintf(w, "ok=%s failed=%s rejected=%s received=%s elapsed=%s avg-latency=%s\n",
		humanize.Comma(s.ok), humanize.Comma(s.failed), humanize.Comma(s.rejected),
		humanize.IBytes(s.received), elapsed.Round(time.Millisecond), avg)
}

// patternPayload produces size bytes of a repeating pattern.
func patternPayload(size int) comm.Payload {
	return &comm.ProducerPayload{
		Total: size,
		Produce: func(offset int, buf []byte) (int, error) {
			n := 0
			for ; n < len(buf) && offset+n < size; n++ {
				buf[n] = byte('a' + (offset+n)%26)
			}
			if n < len(buf) {
				return n, io.EOF
			}
			return n, nil
		},
	}
}

func (r *Root) loadCmd() *cobra.Command {
	var total int
	var perSecond float64
	var size string
	cmd := &cobra.Command{
		Use:   "load PATH",
		Short: "Send requests at a fixed rate and report results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bodySize, err := humanize.ParseBytes(size)
			if err != nil {
				return fmt.Errorf("invalid size: %w", err)
			}
			conn, err := r.connect(cmd.Context(), comm.HandleEventFunc(printEvent))
			if err != nil {
				return err
			}
			defer conn.Close()

			limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
			var stats loadStats
			var wg sync.WaitGroup
			start := time.Now()
			err = runLoad(cmd.Context(), limiter, total, func() error {
				req := &comm.Request{Method: msgs.GET, Path: args[0], Timeout: r.Timeout}
				if bodySize > 0 {
					req.Method, req.Payload = msgs.POST, patternPayload(int(bodySize))
					req.ContentFormat = msgs.OctetStream
				}
				sent := time.Now()
				req.Handler = comm.HandleResponseFunc(func(resp *comm.Response) {
					stats.record(resp, time.Since(sent))
					if resp.Last {
						wg.Done()
					}
				})
				wg.Add(1)
				err := conn.Submit(req)
				if err != nil {
					wg.Done()
				}
				if errors.Is(err, comm.ErrNoSlot) {
					stats.reject()
					return nil
				}
				return err
			})
			wg.Wait()
			stats.print(cmd.OutOrStdout(), time.Since(start))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&total, "total", "n", 100, "Number of requests.")
	flags.Float64VarP(&perSecond, "rate", "r", 10, "Requests per second.")
	flags.StringVarP(&size, "size", "s", "0", "Request body size, e.g. 4KiB; POST is used when nonzero.")
	return cmd
}

// runLoad calls submit total times, paced by limiter.
func runLoad(ctx context.Context, limiter *rate.Limiter, total int, submit func() error) error {
	for n := 0; n < total; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := submit(); err != nil {
			glog.Errorf("submit %d: %v", n, err)
			return err
		}
	}
	return nil
}
