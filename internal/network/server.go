package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrQueueFull     = errors.New("session outbound queue full")
	ErrSessionClosed = errors.New("session closed")
)

// Handler processes one inbound envelope. Handlers run on the session's reader
// goroutine, so they should hand long work off rather than block.
type Handler func(ctx context.Context, sess *Session, env Envelope)

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxQueue     int
	Compress     bool

	// MaxMessageBytes caps a single inbound WebSocket message. Larger messages
	// close the session.
	MaxMessageBytes int64
}

// DefaultMaxMessageBytes is the inbound message cap used when Options leaves
// it unset.
const DefaultMaxMessageBytes = 1 << 20

type frame struct {
	kind int
	data []byte
}

// Session is one connected viewer.
type Session struct {
	ID   string
	Name string

	out    chan frame
	closed chan struct{}
	once   sync.Once
}

func (s *Session) enqueue(f frame) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- f:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.closed) })
}

type Server struct {
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader
	seq      atomic.Uint64

	mu       sync.RWMutex
	handlers map[MessageType][]Handler
	sessions map[string]*Session
}

func NewServer(opts Options, logger *log.Logger) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 16
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		handlers: make(map[MessageType][]Handler),
		sessions: make(map[string]*Session),
	}
}

func (s *Server) Register(msgType MessageType, handler Handler) {
	s.mu.Lock()
	s.handlers[msgType] = append(s.handlers[msgType], handler)
	s.mu.Unlock()
}

func (s *Server) handlersFor(msgType MessageType) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Handler(nil), s.handlers[msgType]...)
}

// SessionCount returns the number of connected viewers.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Serve accepts viewer connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.Handler(ctx))
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		s.closeAll()
		return ctx.Err()
	case err := <-errCh:
		s.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve viewers: %w", err)
	}
}

// Handler upgrades requests to WebSocket sessions. The first message must be a
// hello; it is dispatched to hello handlers once the session is registered.
func (s *Server) Handler(parent context.Context) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.opts.MaxMessageBytes)

		sess, hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		defer s.drop(sess)

		ctx, cancel := context.WithCancel(parent)
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
						time.Now().Add(time.Second))
					_ = conn.Close()
					return
				case <-sess.closed:
					cancel()
					_ = conn.Close()
					return
				case f := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
					if err := conn.WriteMessage(f.kind, f.data); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for _, h := range s.handlersFor(MessageHello) {
			h(ctx, sess, hello)
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if errors.Is(err, websocket.ErrReadLimit) {
					s.logger.Printf("viewer %s sent a message over %d bytes", sess.ID, s.opts.MaxMessageBytes)
				}
				break
			}
			env, err := DecodeFrame(msg)
			if err != nil {
				s.logger.Printf("decode message from %s: %v", sess.ID, err)
				continue
			}
			handlers := s.handlersFor(env.Type)
			if len(handlers) == 0 {
				_ = s.Send(sess, MessageError, ErrorReply{Message: fmt.Sprintf("unsupported message type %q", env.Type)})
				continue
			}
			for _, h := range handlers {
				h(ctx, sess, env)
			}
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*Session, Envelope, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, Envelope{}, false
	}
	env, err := DecodeFrame(msg)
	if err != nil || env.Type != MessageHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"),
			time.Now().Add(time.Second))
		return nil, Envelope{}, false
	}

	var hello Hello
	if len(env.Payload) > 0 {
		_ = DecodePayload(env, &hello)
	}
	if hello.Name == "" {
		hello.Name = "viewer"
	}

	sess := &Session{
		ID:     uuid.NewString(),
		Name:   hello.Name,
		out:    make(chan frame, s.opts.MaxQueue),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.logger.Printf("viewer %s (%s) connected, %d online", sess.ID, sess.Name, s.SessionCount())
	return sess, env, true
}

func (s *Server) drop(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	sess.close()
	s.logger.Printf("viewer %s disconnected, %d online", sess.ID, s.SessionCount())
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.close()
	}
}

// Send queues a text envelope for sess. It never blocks; a full queue drops
// the message and returns ErrQueueFull.
func (s *Server) Send(sess *Session, msgType MessageType, payload any) error {
	data, err := s.prepare(msgType, payload)
	if err != nil {
		return err
	}
	return sess.enqueue(frame{kind: websocket.TextMessage, data: data})
}

// SendLarge queues an envelope that may be sizeable, such as a snapshot. With
// compression enabled it travels as a zstd binary frame.
func (s *Server) SendLarge(sess *Session, msgType MessageType, payload any) error {
	data, err := s.prepare(msgType, payload)
	if err != nil {
		return err
	}
	if s.opts.Compress {
		return sess.enqueue(frame{kind: websocket.BinaryMessage, data: Compress(data)})
	}
	return sess.enqueue(frame{kind: websocket.TextMessage, data: data})
}

// Broadcast queues the envelope for every session and returns how many
// accepted it.
func (s *Server) Broadcast(msgType MessageType, payload any) (int, error) {
	data, err := s.prepare(msgType, payload)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, sess := range sessions {
		if err := sess.enqueue(frame{kind: websocket.TextMessage, data: data}); err != nil {
			s.logger.Printf("broadcast %s to %s: %v", msgType, sess.ID, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *Server) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq.Add(1),
		Payload:   raw,
	}
	return Encode(env)
}
