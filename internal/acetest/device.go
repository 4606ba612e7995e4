// Package acetest provides a simulated ACE unit and serial port for
// tests that need a full protocol round trip without hardware.
package acetest

import (
	"encoding/json"
	"sync"

	"github.com/topeysoft/ace-go/pkg/wire"
)

// Device is an in-memory ACE unit holding four slots, a dryer and the
// complete method set. Safe for concurrent use; a Device can back any
// number of Ports.
type Device struct {
	mu sync.Mutex

	info      wire.Info
	unitState string
	temp      int
	fanSpeed  int
	slots     []wire.SlotStatus
	assist    []bool
	dryer     wire.DryerStatus

	// retractClears selects what a slot reports after back succeeds:
	// "empty" when true (filament pulled fully out), "ready" otherwise.
	retractClears bool

	drops      map[wire.Method]int
	rejects    map[wire.Method]*rejection
	requests   []wire.Method
	lastParams map[wire.Method]map[string]any
}

type rejection struct {
	code int
	msg  string
}

// NewDevice creates a device reporting the given identification. All
// four slots start empty, the chamber at ambient temperature, the
// dryer stopped.
func NewDevice(info wire.Info) *Device {
	d := &Device{
		info:          info,
		unitState:     "ready",
		temp:          25,
		slots:         make([]wire.SlotStatus, 4),
		assist:        make([]bool, 4),
		dryer:         wire.DryerStatus{Status: wire.DryerStopped},
		retractClears: true,
		drops:         make(map[wire.Method]int),
		rejects:       make(map[wire.Method]*rejection),
		lastParams:    make(map[wire.Method]map[string]any),
	}
	for i := range d.slots {
		d.slots[i] = wire.SlotStatus{Index: i, Status: wire.SlotEmpty}
	}
	return d
}

// Info returns the device identification.
func (d *Device) Info() wire.Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// SetSlot sets one slot's reported occupancy.
func (d *Device) SetSlot(index int, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[index].Status = status
}

// SetRFID sets one slot's spool tag fields.
func (d *Device) SetRFID(index int, sku, filamentType string, color []int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[index].SKU = sku
	d.slots[index].Type = filamentType
	d.slots[index].Color = append([]int(nil), color...)
}

// SetTemp sets the chamber temperature.
func (d *Device) SetTemp(temp int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temp = temp
}

// SetRetractClears selects whether back empties the slot or leaves the
// filament seated.
func (d *Device) SetRetractClears(clears bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retractClears = clears
}

// Slot returns one slot's current report.
func (d *Device) Slot(index int) wire.SlotStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.slots[index]
	s.Color = append([]int(nil), s.Color...)
	return s
}

// AssistEnabled reports one slot's feed assist flag.
func (d *Device) AssistEnabled(index int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.assist[index]
}

// Dryer returns the dryer's current report.
func (d *Device) Dryer() wire.DryerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dryer
}

// DropNext makes the device swallow the next n requests for a method,
// so the host times out waiting.
func (d *Device) DropNext(method wire.Method, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drops[method] += n
}

// RejectNext makes the device answer the next request for a method
// with a failure code.
func (d *Device) RejectNext(method wire.Method, code int, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejects[method] = &rejection{code: code, msg: msg}
}

// Requests returns the methods handled so far, in order. Dropped
// requests count; the host sent them.
func (d *Device) Requests() []wire.Method {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wire.Method(nil), d.requests...)
}

// LastInt returns one numeric parameter of the most recent request for
// a method, or zero when none carried it.
func (d *Device) LastInt(method wire.Method, key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.lastParams[method][key].(float64)
	if !ok {
		return 0
	}
	return int(f)
}

// Handle answers one request. ok is false when the request was
// configured to be dropped.
func (d *Device) Handle(req *wire.Request) (resp *wire.Response, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, req.Method)
	if m, isMap := req.Params.(map[string]any); isMap {
		d.lastParams[req.Method] = m
	}

	if d.drops[req.Method] > 0 {
		d.drops[req.Method]--
		return nil, false
	}
	if rej := d.rejects[req.Method]; rej != nil {
		delete(d.rejects, req.Method)
		return &wire.Response{ID: req.ID, Code: rej.code, Msg: rej.msg}, true
	}

	switch req.Method {
	case wire.MethodGetInfo:
		return d.resultResponse(req.ID, d.info), true

	case wire.MethodGetStatus:
		return d.resultResponse(req.ID, d.statusLocked()), true

	case wire.MethodFeed:
		index := intParam(req.Params, "index")
		if index < 0 || index >= len(d.slots) {
			return &wire.Response{ID: req.ID, Code: 1, Msg: "invalid index"}, true
		}
		d.slots[index].Status = wire.SlotReady
		return okResponse(req.ID), true

	case wire.MethodRetract:
		index := intParam(req.Params, "index")
		if index < 0 || index >= len(d.slots) {
			return &wire.Response{ID: req.ID, Code: 1, Msg: "invalid index"}, true
		}
		if d.retractClears {
			d.slots[index].Status = wire.SlotEmpty
		} else {
			d.slots[index].Status = wire.SlotReady
		}
		return okResponse(req.ID), true

	case wire.MethodFeedAssist:
		index := intParam(req.Params, "index")
		if index < 0 || index >= len(d.assist) {
			return &wire.Response{ID: req.ID, Code: 1, Msg: "invalid index"}, true
		}
		d.assist[index] = true
		return okResponse(req.ID), true

	case wire.MethodFeedAssistOff:
		for i := range d.assist {
			d.assist[i] = false
		}
		return okResponse(req.ID), true

	case wire.MethodDryerStart:
		minutes := intParam(req.Params, "time")
		d.dryer = wire.DryerStatus{
			Status:     wire.DryerDrying,
			TargetTemp: intParam(req.Params, "temp"),
			Duration:   minutes,
			RemainTime: minutes,
		}
		return okResponse(req.ID), true

	case wire.MethodDryerStop:
		d.dryer = wire.DryerStatus{Status: wire.DryerStopped}
		return okResponse(req.ID), true

	default:
		return &wire.Response{ID: req.ID, Code: 1, Msg: "unknown method"}, true
	}
}

// statusLocked builds the get_status result from current state.
func (d *Device) statusLocked() wire.Status {
	assistCount := 0
	for _, on := range d.assist {
		if on {
			assistCount++
		}
	}
	slots := make([]wire.SlotStatus, len(d.slots))
	copy(slots, d.slots)
	return wire.Status{
		Status:          d.unitState,
		Temp:            d.temp,
		FanSpeed:        d.fanSpeed,
		FeedAssistCount: assistCount,
		Dryer:           d.dryer,
		Slots:           slots,
	}
}

func (d *Device) resultResponse(id uint32, result any) *wire.Response {
	data, err := json.Marshal(result)
	if err != nil {
		return &wire.Response{ID: id, Code: 1, Msg: err.Error()}
	}
	return &wire.Response{ID: id, Code: 0, Msg: "success", Result: data}
}

func okResponse(id uint32) *wire.Response {
	return &wire.Response{ID: id, Code: 0, Msg: "success"}
}

// intParam digs an integer out of decoded request params.
func intParam(params any, key string) int {
	m, ok := params.(map[string]any)
	if !ok {
		return 0
	}
	f, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(f)
}
