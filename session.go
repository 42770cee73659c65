package cdptab

import (
	"context"
	"io"
	"log"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
)

// Session is the command/event connection to one tab. Execute sends a named
// command and unmarshals its result; Listen registers fn for every decoded
// protocol event until ctx is done. Event delivery is ordered per session.
type Session interface {
	Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error
	Listen(ctx context.Context, fn func(ev any))

	// TargetID identifies the tab behind this session; it is used to
	// re-activate the tab before screenshot capture.
	TargetID() target.ID

	Close() error
}

// cancelableListener is a session event listener that is dropped once its
// context is done.
type cancelableListener struct {
	ctx context.Context
	fn  func(ev any)
}

func runListeners(list []cancelableListener, ev any) []cancelableListener {
	for i := 0; i < len(list); {
		listener := list[i]
		select {
		case <-listener.ctx.Done():
			list = append(list[:i], list[i+1:]...)
			continue
		default:
			listener.fn(ev)
			i++
		}
	}
	return list
}

// Screenshot and PDF results arrive base64-encoded in a single frame, so
// the read side needs far more room than the write side.
const (
	wsReadBuffer  = 25 << 20
	wsWriteBuffer = 10 << 20
)

// transport moves raw protocol messages over the wire.
type transport interface {
	read() (*cdproto.Message, error)
	write(*cdproto.Message) error
	io.Closer
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) read() (*cdproto.Message, error) {
	msg := new(cdproto.Message)
	if err := t.conn.ReadJSON(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *wsTransport) write(msg *cdproto.Message) error {
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// forceIP rewrites the host in urlstr to an IP address. Chrome 66+ rejects
// debugger connections whose Host header is neither an IP nor "localhost".
func forceIP(urlstr string) string {
	u, err := url.Parse(urlstr)
	if err != nil || u.Host == "" {
		return urlstr
	}
	addr, err := net.ResolveIPAddr("ip", u.Hostname())
	if err != nil {
		return urlstr
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(addr.IP.String(), port)
	} else {
		u.Host = addr.IP.String()
	}
	return u.String()
}

// WebSocketSession is a Session over a devtools websocket endpoint attached
// directly to one page target.
type WebSocketSession struct {
	conn     transport
	targetID target.ID

	// next is the next command id.
	next int64

	listenersMu sync.Mutex
	listeners   []cancelableListener

	respMu sync.Mutex
	resp   map[int64]chan *cdproto.Message

	// closed when the read loop exits.
	done     chan struct{}
	doneOnce sync.Once

	logf, debugf, errf func(string, ...any)
}

// SessionOption is a WebSocketSession option.
type SessionOption func(*WebSocketSession)

// WithSessionLogf sets the func to receive general session logging.
func WithSessionLogf(f func(string, ...any)) SessionOption {
	return func(s *WebSocketSession) { s.logf = f }
}

// WithSessionDebugf sets the func to receive protocol traffic logging.
func WithSessionDebugf(f func(string, ...any)) SessionOption {
	return func(s *WebSocketSession) { s.debugf = f }
}

// WithSessionErrorf sets the func to receive session error logging.
func WithSessionErrorf(f func(string, ...any)) SessionOption {
	return func(s *WebSocketSession) { s.errf = f }
}

// DialSession dials the page target's websocket debugger URL and starts the
// session's read loop. The read loop stops when ctx is done, the connection
// drops, or Close is called.
func DialSession(ctx context.Context, urlstr string, targetID target.ID, opts ...SessionOption) (*WebSocketSession, error) {
	d := &websocket.Dialer{
		ReadBufferSize:  wsReadBuffer,
		WriteBufferSize: wsWriteBuffer,
	}
	conn, _, err := d.DialContext(ctx, forceIP(urlstr), nil)
	if err != nil {
		return nil, err
	}
	s := &WebSocketSession{
		conn:     &wsTransport{conn},
		targetID: targetID,
		resp:     make(map[int64]chan *cdproto.Message),
		done:     make(chan struct{}),
		logf:     log.Printf,
	}
	for _, o := range opts {
		o(s)
	}
	if s.errf == nil {
		s.errf = func(format string, v ...any) { s.logf("ERROR: "+format, v...) }
	}
	if s.debugf == nil {
		s.debugf = func(string, ...any) {}
	}
	go s.run(ctx)
	return s, nil
}

// run reads messages from the connection, routing command results to their
// waiting caller and fanning decoded events out to the listeners. Events
// from one session are delivered in arrival order.
func (s *WebSocketSession) run(ctx context.Context) {
	defer s.doneOnce.Do(func() { close(s.done) })
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := s.conn.read()
		if err != nil {
			return
		}
		switch {
		case msg.ID != 0:
			s.respMu.Lock()
			ch, ok := s.resp[msg.ID]
			delete(s.resp, msg.ID)
			s.respMu.Unlock()
			if !ok {
				s.errf("id %d not present in response map", msg.ID)
				continue
			}
			ch <- msg
			close(ch)

		case msg.Method != "":
			ev, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
					// An event from a browser this protocol build
					// doesn't know. Ignore it.
					continue
				}
				s.errf("could not unmarshal event: %v", err)
				continue
			}
			s.listenersMu.Lock()
			s.listeners = runListeners(s.listeners, ev)
			s.listenersMu.Unlock()

		default:
			s.errf("ignoring malformed incoming message (missing id or method): %#v", msg)
		}
	}
}

// Execute sends a command and waits for its result.
func (s *WebSocketSession) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	select {
	case <-s.done:
		return ErrChannelClosed
	default:
	}

	var buf []byte
	if params != nil {
		var err error
		buf, err = easyjson.Marshal(params)
		if err != nil {
			return err
		}
	}
	id := atomic.AddInt64(&s.next, 1)
	ch := make(chan *cdproto.Message, 1)
	s.respMu.Lock()
	s.resp[id] = ch
	s.respMu.Unlock()

	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	s.debugf("-> %s", method)
	if err := s.conn.write(msg); err != nil {
		s.respMu.Lock()
		delete(s.resp, id)
		s.respMu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrChannelClosed
	case msg := <-ch:
		switch {
		case msg == nil:
			return ErrChannelClosed
		case msg.Error != nil:
			return msg.Error
		case res != nil:
			return easyjson.Unmarshal(msg.Result, res)
		}
	}
	return nil
}

// Listen registers fn for every decoded protocol event until ctx is done.
func (s *WebSocketSession) Listen(ctx context.Context, fn func(ev any)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, cancelableListener{ctx, fn})
	s.listenersMu.Unlock()
}

// TargetID returns the id of the tab behind this session.
func (s *WebSocketSession) TargetID() target.ID {
	return s.targetID
}

// Close closes the underlying connection, stopping the read loop.
func (s *WebSocketSession) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.conn.Close()
}
