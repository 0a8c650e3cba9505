package sh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/coap.go/pkg/coap/comm"
	"github.com/robotalks/coap.go/pkg/coap/msgs"
	"github.com/robotalks/coap.go/pkg/env"
)

// Shell provides ishell backed interactive shell over one connection.
type Shell struct {
	Interactive bool
	AutoConnect bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config

	lock     sync.Mutex
	conn     *comm.Conn
	url      string
	observes map[string]*comm.Request
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	// DefaultTimeout bounds a single command.
	DefaultTimeout = 30 * time.Second
)

var commands = []*ishell.Cmd{
	&ConnectCmd,
	&DisconnectCmd,
	&GetCmd,
	&PostCmd,
	&PutCmd,
	&DeleteCmd,
	&ObserveCmd,
	&CancelCmd,
	&PingCmd,
	&CSMCmd,
	&ReleaseCmd,
}

// New creates a new shell.
func New(conf *env.Config, interactive bool) *Shell {
	s := &Shell{
		Interactive: interactive,
		Timeout:     DefaultTimeout,
		Shell:       ishell.New(),
		Config:      conf,
		observes:    make(map[string]*comm.Request),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Conn returns the current connection, nil if not connected.
func (s *Shell) Conn() *comm.Conn {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.conn
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context, conn *comm.Conn)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		conn := ShellFrom(c).Conn()
		if conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c, conn)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects url, or Config.URL if empty. The current connection
// is closed first.
func (s *Shell) Connect(url string) error {
	conf := *s.Config
	if url != "" {
		conf.URL = url
	}
	s.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	conn, err := conf.Connect(ctx, comm.HandleEventFunc(s.handleEvent))
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.conn, s.url = conn, conf.URL
	s.lock.Unlock()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.URL))
	return nil
}

// Disconnect closes the current connection.
func (s *Shell) Disconnect() {
	s.lock.Lock()
	conn := s.conn
	s.conn, s.url = nil, ""
	s.observes = make(map[string]*comm.Request)
	s.lock.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			glog.Warningf("close: %v", err)
		}
		comm.DefaultRegistry().Unregister(conn)
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

func (s *Shell) handleEvent(evt *comm.Event) {
	s.Shell.Println(FormatEvent(evt))
	if evt.Type == comm.EventFailed {
		s.lock.Lock()
		if s.conn == evt.Conn {
			s.conn, s.url = nil, ""
		}
		s.lock.Unlock()
		comm.DefaultRegistry().Unregister(evt.Conn)
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Do runs a request and waits for the whole response.
func (s *Shell) Do(conn *comm.Conn, req *comm.Request) (*comm.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	return conn.Do(ctx, req)
}

// Observe registers an observation on path, printing notifications.
func (s *Shell) Observe(conn *comm.Conn, path string) error {
	s.lock.Lock()
	_, exists := s.observes[path]
	s.lock.Unlock()
	if exists {
		return fmt.Errorf("already observing %s", path)
	}
	req := &comm.Request{
		Method:  msgs.GET,
		Path:    path,
		Observe: true,
	}
	// block continuations carry no Observe option
	observable := true
	req.Handler = comm.HandleResponseFunc(func(resp *comm.Response) {
		s.Shell.Println(FormatNotification(resp))
		if resp.Err == nil && resp.Offset == 0 && resp.Message != nil {
			observable = resp.Message.Options.Has(msgs.Observe)
		}
		if resp.Err != nil || (resp.Last && !observable) {
			s.lock.Lock()
			if s.observes[path] == req {
				delete(s.observes, path)
			}
			s.lock.Unlock()
		}
	})
	s.lock.Lock()
	s.observes[path] = req
	s.lock.Unlock()
	if err := conn.Submit(req); err != nil {
		s.lock.Lock()
		delete(s.observes, path)
		s.lock.Unlock()
		return err
	}
	return nil
}

// CancelObserve cancels the observation on path, or all if path is empty.
func (s *Shell) CancelObserve(conn *comm.Conn, path string) int {
	s.lock.Lock()
	var reqs []*comm.Request
	for p, req := range s.observes {
		if path == "" || p == path {
			reqs = append(reqs, req)
			delete(s.observes, p)
		}
	}
	s.lock.Unlock()
	canceled := 0
	for _, req := range reqs {
		if conn.Cancel(req) {
			canceled++
		}
	}
	return canceled
}

// Run runs the shell.
func (s *Shell) Run(args ...string) error {
	if s.AutoConnect && s.Config.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.URL)
		}
		if err := s.Connect(""); err != nil {
			return fmt.Errorf("connect %q failed: %w", s.Config.URL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}
