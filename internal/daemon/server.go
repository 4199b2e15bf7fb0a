// Package daemon implements the per-project memory daemon: a Unix-domain
// socket request loop, PID-file lifecycle, and the periodic maintenance
// tick that ages threads and bridges.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/compact"
	"github.com/ai-memoryd/memoryd/internal/config"
	"github.com/ai-memoryd/memoryd/internal/gossip"
	"github.com/ai-memoryd/memoryd/internal/retrieve"
	"github.com/ai-memoryd/memoryd/internal/shared"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

const (
	requestTimeout  = 30 * time.Second
	maintenanceTick = 300 * time.Second
	shutdownDrain   = 5 * time.Second
	maxWorkers      = 16
	llmAdmitRate    = 4  // sustained external-LLM calls/sec admitted from the worker pool
	llmAdmitBurst   = 8
)

// Server owns the socket, pid file, and maintenance ticker for one
// project. Exactly one instance runs per .ai directory.
type Server struct {
	socketPath string
	pidPath    string

	store      *store.Store
	manager    *threadmgr.Manager
	classifier *classify.Classifier
	propagator *gossip.Propagator
	retriever  *retrieve.Retriever
	compactor  *compact.Compactor
	shared     *shared.Manager
	cfg        *config.Config
	log        *logrus.Entry
	cliBinary  string

	limiter *rate.Limiter
	sem     chan struct{}
	wg      sync.WaitGroup

	listener net.Listener
	ticker   *time.Ticker
	stop     chan struct{}
}

// New wires a Server from its collaborators. The ai binary used for
// CLI-in-prompt passthrough (§4.8) is resolved from PATH; if absent,
// passthrough is disabled rather than failing startup.
func New(socketPath, pidPath string, st *store.Store, mgr *threadmgr.Manager, clsf *classify.Classifier, prop *gossip.Propagator, ret *retrieve.Retriever, cpt *compact.Compactor, cfg *config.Config, log *logrus.Entry) *Server {
	cliBinary, _ := exec.LookPath("ai")
	return &Server{
		socketPath: socketPath,
		pidPath:    pidPath,
		store:      st,
		manager:    mgr,
		classifier: clsf,
		propagator: prop,
		retriever:  ret,
		compactor:  cpt,
		shared:     shared.New(st),
		cfg:        cfg,
		log:        log,
		cliBinary:  cliBinary,
		limiter:    rate.NewLimiter(llmAdmitRate, llmAdmitBurst),
		sem:        make(chan struct{}, maxWorkers),
		stop:       make(chan struct{}),
	}
}

// Start writes the pid file (refusing to start if a live daemon already
// answers a ping on the socket), binds the Unix socket with user-only
// permissions, and starts the maintenance ticker. Serve must be called
// afterward to actually accept connections.
func (s *Server) Start() error {
	if alive, err := s.anotherInstanceAlive(); err != nil {
		return err
	} else if alive {
		return fmt.Errorf("daemon: another instance is already running at %s", s.socketPath)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("daemon: creating socket directory: %w", err)
	}
	_ = os.Remove(s.socketPath)

	prevMask := unix.Umask(0o077)
	ln, err := net.Listen("unix", s.socketPath)
	unix.Umask(prevMask)
	if err != nil {
		return fmt.Errorf("daemon: binding socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("daemon: setting socket permissions: %w", err)
	}
	s.listener = ln

	if err := s.writePIDFile(); err != nil {
		ln.Close()
		return err
	}

	s.ticker = time.NewTicker(maintenanceTick)
	go s.maintenanceLoop()

	s.log.WithField("socket", s.socketPath).Info("daemon listening")
	return nil
}

func (s *Server) anotherInstanceAlive() (bool, error) {
	data, err := os.ReadFile(s.pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("daemon: reading pid file: %w", err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return false, nil
	}
	if !processAlive(pid) {
		return false, nil
	}
	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err != nil {
		return false, nil
	}
	defer conn.Close()
	fmt.Fprintln(conn, `{"op":"ping"}`)
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false, nil
	}
	return len(reply) > 0, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (s *Server) writePIDFile() error {
	f, err := os.OpenFile(s.pidPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			_ = os.Remove(s.pidPath)
			f, err = os.OpenFile(s.pidPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		}
		if err != nil {
			return fmt.Errorf("daemon: creating pid file: %w", err)
		}
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

// Serve accepts connections until the listener is closed, dispatching
// each one to a bounded worker pool so a capture burst cannot open
// unbounded concurrent LLM/embedder calls.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() { <-s.sem; s.wg.Done() }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rep := s.dispatch(ctx, []byte(line))
	out, err := json.Marshal(rep)
	if err != nil {
		out, _ = json.Marshal(errorReply(string(store.ErrInvalidArg), err.Error()))
	}
	out = append(out, '\n')
	conn.Write(out)
}

// Shutdown stops the ticker and accept loop, drains in-flight requests
// with a soft deadline, then removes the socket and pid files.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownDrain):
		s.log.Warn("daemon shutdown: in-flight requests did not drain before soft deadline")
	case <-ctx.Done():
	}

	_ = os.Remove(s.socketPath)
	_ = os.Remove(s.pidPath)
	return nil
}
