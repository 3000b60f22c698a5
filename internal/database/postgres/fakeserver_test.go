package postgres

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/logger"
	"github.com/stretchr/testify/require"
)

type serverMode int

const (
	modeAccept serverMode = iota // trust auth, answer every query with an empty result
	modeReject                   // fail startup with an ErrorResponse
	modeStall                    // accept TCP and never answer
)

// fakeServer speaks just enough of the PostgreSQL wire protocol for pgxpool
// to open, ping and close connections.
type fakeServer struct {
	ln   net.Listener
	mode serverMode
	code string // SQLSTATE sent in modeReject

	active   atomic.Int32
	peak     atomic.Int32
	sessions atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

func newFakeServer(t *testing.T, mode serverMode) *fakeServer {
	t.Helper()

	// The descriptor carries no sslmode; keep pgx from negotiating TLS.
	t.Setenv("PGSSLMODE", "disable")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, mode: mode, code: "28P01"}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) config() database.PoolConfig {
	addr := s.ln.Addr().(*net.TCPAddr)
	return database.PoolConfig{
		Host:     "127.0.0.1",
		Port:     uint16(addr.Port),
		User:     "jobs",
		Password: "secret",
		DB:       "jobs",
	}
}

func (s *fakeServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	if s.mode == modeStall {
		_, _ = io.Copy(io.Discard, conn)
		return
	}

	backend := pgproto3.NewBackend(conn, conn)
	if !negotiate(conn, backend) {
		return
	}

	if s.mode == modeReject {
		backend.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     s.code,
			Message:  "rejected by fake server",
		})
		_ = backend.Flush()
		return
	}

	n := s.active.Add(1)
	defer s.active.Add(-1)
	s.sessions.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}
		switch msg.(type) {
		case *pgproto3.Query:
			backend.Send(&pgproto3.EmptyQueryResponse{})
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
			if err := backend.Flush(); err != nil {
				return
			}
		case *pgproto3.Terminate:
			return
		}
	}
}

// negotiate refuses encryption requests and waits for the StartupMessage.
func negotiate(conn net.Conn, backend *pgproto3.Backend) bool {
	for {
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return false
		}
		switch msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return false
			}
		case *pgproto3.StartupMessage:
			return true
		default:
			return false
		}
	}
}

func (s *fakeServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// quietCtx returns a context carrying a logger that drops everything below error.
func quietCtx() context.Context {
	return logger.New(&logger.Config{Level: "fatal", Output: io.Discard}).WithContext(context.Background())
}
