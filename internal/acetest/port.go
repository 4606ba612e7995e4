package acetest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/topeysoft/ace-go/pkg/transport"
	"github.com/topeysoft/ace-go/pkg/wire"
)

// Port is an in-memory serial port backed by a Device. Frames written
// by the host are decoded, handled by the device, and the framed reply
// is made available to Read.
type Port struct {
	device *Device

	mu       sync.Mutex
	inbuf    []byte
	leftover []byte
	corrupt  func([]byte) []byte

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPort opens a port on the given device.
func NewPort(device *Device) *Port {
	return &Port{
		device:   device,
		incoming: make(chan []byte, 8),
		closed:   make(chan struct{}),
	}
}

// CorruptReplies installs a transform applied to every framed reply
// before the host reads it.
func (p *Port) CorruptReplies(fn func([]byte) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corrupt = fn
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.leftover) > 0 {
		n := copy(b, p.leftover)
		p.leftover = p.leftover[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case data := <-p.incoming:
		n := copy(b, data)
		p.mu.Lock()
		p.leftover = data[n:]
		p.mu.Unlock()
		return n, nil
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	p.mu.Lock()
	p.inbuf = append(p.inbuf, b...)
	var replies [][]byte
	for {
		req, rest, err := wire.DecodeRequest(p.inbuf)
		p.inbuf = rest
		if err != nil {
			continue
		}
		if req == nil {
			break
		}
		resp, ok := p.device.Handle(req)
		if !ok {
			continue
		}
		frame, err := wire.EncodeResponse(resp)
		if err != nil {
			p.mu.Unlock()
			return 0, err
		}
		if p.corrupt != nil {
			frame = p.corrupt(frame)
		}
		replies = append(replies, frame)
	}
	p.mu.Unlock()

	for _, frame := range replies {
		p.feed(frame)
	}
	return len(b), nil
}

// feed queues device output for Read without blocking a closed port.
func (p *Port) feed(data []byte) {
	select {
	case p.incoming <- data:
	case <-p.closed:
	}
}

// Close severs the port. Blocked and future Reads fail, which drives a
// live Link to its closed state.
func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Port) ResetInputBuffer() error  { return nil }
func (p *Port) ResetOutputBuffer() error { return nil }

// Factory opens in-memory ports bound to registered devices, and
// records every port it opens so tests can reach the one behind a
// live link.
type Factory struct {
	mu      sync.Mutex
	devices map[string]*Device
	ports   map[string][]*Port
}

// NewFactory creates an empty factory. Opening an unregistered path
// fails, which doubles as an unplugged device.
func NewFactory() *Factory {
	return &Factory{
		devices: make(map[string]*Device),
		ports:   make(map[string][]*Port),
	}
}

// Add registers a device at a port path.
func (f *Factory) Add(path string, device *Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[path] = device
}

// Remove unregisters the device at a port path. Live ports stay up;
// only new opens fail.
func (f *Factory) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, path)
}

// Open satisfies transport.PortFactory.
func (f *Factory) Open(path string, baudRate int) (transport.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	device, ok := f.devices[path]
	if !ok {
		return nil, fmt.Errorf("acetest: no device at %s", path)
	}
	port := NewPort(device)
	f.ports[path] = append(f.ports[path], port)
	return port, nil
}

// LastPort returns the most recently opened port for a path, or nil.
func (f *Factory) LastPort(path string) *Port {
	f.mu.Lock()
	defer f.mu.Unlock()
	opened := f.ports[path]
	if len(opened) == 0 {
		return nil
	}
	return opened[len(opened)-1]
}

// OpenCount returns how many ports have been opened for a path.
func (f *Factory) OpenCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ports[path])
}

// OpenLink opens a link to a single device over an in-memory port,
// with a request timeout suited to tests. The returned port is the one
// the link runs on; closing it simulates the cable dropping.
func OpenLink(device *Device) (*transport.Link, *Port, error) {
	factory := NewFactory()
	factory.Add("sim0", device)
	link, err := transport.Open("sim0", transport.Config{
		RequestTimeout: 250 * time.Millisecond,
		PortFactory:    factory.Open,
	})
	if err != nil {
		return nil, nil, err
	}
	return link, factory.LastPort("sim0"), nil
}
