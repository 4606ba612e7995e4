package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topeysoft/ace-go/pkg/log"
	"github.com/topeysoft/ace-go/pkg/wire"
)

// Link defaults.
const (
	// DefaultBaudRate is the serial speed ACE units run at.
	DefaultBaudRate = 115200

	// DefaultRequestTimeout bounds the wait for a matching response.
	DefaultRequestTimeout = 2 * time.Second

	// DefaultSettleDelay is the pause between opening a port and the
	// first write. Units drop bytes that arrive while the USB CDC
	// endpoint is still settling.
	DefaultSettleDelay = 200 * time.Millisecond

	// MaxLogFrameDataSize is the maximum payload size included in frame
	// log events. Larger payloads are truncated in the event, never on
	// the wire.
	MaxLogFrameDataSize = 4096
)

// readChunkSize is the buffer size for individual serial reads.
const readChunkSize = 4096

// Link errors.
var (
	// ErrTimeout indicates no matching response arrived within the
	// request deadline. The command may still have executed on the unit.
	ErrTimeout = errors.New("request timed out")

	// ErrDisconnected indicates the link has reached its terminal closed
	// state. Links never reopen; recovery means discarding the link and
	// opening a new one.
	ErrDisconnected = errors.New("link disconnected")

	// ErrWriteFailed indicates a frame write failed even after its retry.
	ErrWriteFailed = errors.New("write failed")
)

// Config configures a Link.
type Config struct {
	// BaudRate is the serial speed (default: DefaultBaudRate).
	BaudRate int

	// RequestTimeout is the per-request response deadline used by Send
	// (default: DefaultRequestTimeout).
	RequestTimeout time.Duration

	// SettleDelay pauses Open after flushing the port buffers.
	// DefaultConfig sets DefaultSettleDelay; zero skips the pause.
	SettleDelay time.Duration

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// PortFactory opens the underlying device (default: OpenSerialPort).
	PortFactory PortFactory
}

// DefaultConfig returns the default link configuration.
func DefaultConfig() Config {
	return Config{
		BaudRate:       DefaultBaudRate,
		RequestTimeout: DefaultRequestTimeout,
		SettleDelay:    DefaultSettleDelay,
	}
}

// Link is a request/response channel to one unit over one serial
// connection.
//
// Sends are serialized: a second caller blocks until the first
// exchange completes or times out. A link that observes a fatal port
// error closes permanently; Send then fails with ErrDisconnected until
// the caller replaces the link.
type Link struct {
	path   string
	connID string
	config Config

	port Port

	// sendMu is held for a full request/response exchange, keeping at
	// most one command in flight.
	sendMu sync.Mutex
	nextID uint32 // guarded by sendMu

	// In-flight requests awaiting responses, keyed by correlation id.
	pending   map[uint32]chan *wire.Response
	pendingMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
}

// Open connects to the serial device at path and starts the link's
// read loop. Both port buffers are flushed and the link sleeps
// Config.SettleDelay before it is handed out, so stale bytes from a
// previous session cannot desynchronize the frame decoder.
func Open(path string, config Config) (*Link, error) {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.PortFactory == nil {
		config.PortFactory = OpenSerialPort
	}

	port, err := config.PortFactory(path, config.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("open link: %w", err)
	}

	port.ResetInputBuffer()
	port.ResetOutputBuffer()
	if config.SettleDelay > 0 {
		time.Sleep(config.SettleDelay)
	}

	l := &Link{
		path:     path,
		connID:   uuid.NewString(),
		config:   config,
		port:     port,
		pending:  make(map[uint32]chan *wire.Response),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	l.logStateChange("", "open", "port opened")

	go l.readLoop()

	return l, nil
}

// Path returns the device path the link was opened on.
func (l *Link) Path() string { return l.path }

// ConnectionID returns the id tagged onto this link's log events.
func (l *Link) ConnectionID() string { return l.connID }

// Closed reports whether the link has reached its terminal state.
func (l *Link) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Send transmits cmd and waits for the response carrying the same
// correlation id, up to Config.RequestTimeout.
//
// Frames arriving in the window that do not match the id (stale
// replies to timed-out requests, corrupt frames) are discarded and the
// wait continues until the deadline.
func (l *Link) Send(cmd *wire.Command) (*wire.Response, error) {
	return l.SendTimeout(cmd, l.config.RequestTimeout)
}

// SendTimeout is Send with an explicit deadline for this one exchange.
func (l *Link) SendTimeout(cmd *wire.Command, timeout time.Duration) (*wire.Response, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	if l.Closed() {
		return nil, ErrDisconnected
	}

	id := l.nextRequestID()
	payload, err := wire.MarshalRequest(id, cmd)
	if err != nil {
		return nil, err
	}
	frame, err := wire.EncodeFrame(payload)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *wire.Response, 1)
	l.pendingMu.Lock()
	l.pending[id] = respCh
	l.pendingMu.Unlock()
	defer func() {
		l.pendingMu.Lock()
		delete(l.pending, id)
		l.pendingMu.Unlock()
	}()

	start := time.Now()
	if err := l.writeFrame(frame, payload); err != nil {
		return nil, err
	}
	l.logRequest(id, cmd)

	select {
	case resp := <-respCh:
		l.logResponse(resp, cmd.Method(), time.Since(start))
		return resp, nil
	case <-time.After(timeout):
		l.logError("send "+string(cmd.Method()), ErrTimeout)
		return nil, fmt.Errorf("%s: %w after %s", cmd.Method(), ErrTimeout, timeout)
	case <-l.closed:
		return nil, ErrDisconnected
	}
}

// nextRequestID returns the next correlation id, wrapping below
// wire.RequestIDModulus the way the unit firmware expects. Callers
// hold sendMu.
func (l *Link) nextRequestID() uint32 {
	l.nextID++
	if l.nextID >= wire.RequestIDModulus {
		l.nextID = 0
	}
	return l.nextID
}

// writeFrame writes one frame to the port, retrying once. The retry
// covers transient driver errors such as a full output buffer; a
// second failure is treated as a disconnect and closes the link.
func (l *Link) writeFrame(frame, payload []byte) error {
	first := l.write(frame, payload)
	if first == nil {
		return nil
	}
	l.logError("write, retrying", first)

	if err := l.write(frame, payload); err == nil {
		return nil
	}

	l.shutdown(fmt.Sprintf("write failed: %v", first))
	return fmt.Errorf("%w: %v", ErrWriteFailed, first)
}

func (l *Link) write(frame, payload []byte) error {
	n, err := l.port.Write(frame)
	if err != nil {
		return err
	}
	if n < len(frame) {
		return io.ErrShortWrite
	}
	l.logFrame(log.DirectionOut, payload)
	return nil
}

// readLoop drains the port, reassembles frames and routes responses to
// waiting senders. It exits when the port errors or the link closes.
func (l *Link) readLoop() {
	defer close(l.readDone)

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, err := l.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = l.drainFrames(buf)
		}
		if err != nil {
			if !l.Closed() {
				l.logError("serial read", err)
			}
			l.shutdown(fmt.Sprintf("read error: %v", err))
			return
		}
	}
}

// drainFrames decodes every complete frame in buf and returns the
// unconsumed tail. Damaged frames are logged and dropped; the sender
// they belonged to runs into its own timeout.
func (l *Link) drainFrames(buf []byte) []byte {
	for {
		payload, rest, err := wire.NextFrame(buf)
		buf = rest
		if err != nil {
			l.logError("frame decode", err)
			continue
		}
		if payload == nil {
			return buf
		}
		l.logFrame(log.DirectionIn, payload)

		resp, err := wire.ParseResponse(payload)
		if err != nil {
			l.logError("response decode", err)
			continue
		}
		l.dispatch(resp)
	}
}

// dispatch hands a response to the sender waiting on its id. Responses
// nobody is waiting for are stale replies to requests that already
// timed out; they are dropped.
func (l *Link) dispatch(resp *wire.Response) {
	l.pendingMu.Lock()
	ch, ok := l.pending[resp.ID]
	l.pendingMu.Unlock()

	if !ok {
		l.logError("dispatch", fmt.Errorf("unmatched response id %d", resp.ID))
		return
	}

	select {
	case ch <- resp:
	default:
	}
}

// Close closes the link and its port. In-flight and subsequent sends
// fail with ErrDisconnected. Close is idempotent and returns once the
// read loop has stopped.
func (l *Link) Close() error {
	l.shutdown("closed by caller")
	<-l.readDone
	return nil
}

// shutdown moves the link to its terminal closed state. Closing the
// port also unblocks the read loop.
func (l *Link) shutdown(reason string) {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.port.Close()
		l.logStateChange("open", "closed", reason)
	})
}

func (l *Link) logFrame(direction log.Direction, payload []byte) {
	if l.config.Logger == nil {
		return
	}
	data := payload
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Port:         l.path,
		Frame: &log.FrameEvent{
			Size:      len(payload) + wire.MinFrameSize,
			Data:      data,
			Truncated: truncated,
		},
	})
}

func (l *Link) logRequest(id uint32, cmd *wire.Command) {
	if l.config.Logger == nil {
		return
	}
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Port:         l.path,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			RequestID: id,
			Method:    string(cmd.Method()),
			Channel:   commandChannel(cmd),
		},
	})
}

func (l *Link) logResponse(resp *wire.Response, method wire.Method, roundTrip time.Duration) {
	if l.config.Logger == nil {
		return
	}
	code := resp.Code
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Port:         l.path,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeResponse,
			RequestID: resp.ID,
			Method:    string(method),
			Code:      &code,
			RoundTrip: &roundTrip,
		},
	})
}

func (l *Link) logStateChange(oldState, newState, reason string) {
	if l.config.Logger == nil {
		return
	}
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Port:         l.path,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityLink,
			Channel:  -1,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (l *Link) logError(context string, err error) {
	if l.config.Logger == nil {
		return
	}
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Port:         l.path,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: context,
		},
	})
}

// commandChannel extracts the channel index a command addresses, if any.
func commandChannel(cmd *wire.Command) *int {
	switch p := cmd.Params().(type) {
	case wire.MoveParams:
		return &p.Index
	case wire.AssistParams:
		return &p.Index
	}
	return nil
}
