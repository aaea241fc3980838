// Package modbus exposes the live telemetry as a Modbus TCP register server.
// Read Input Registers and Read Holding Registers are both accepted and
// answered identically; the unit/slave id is accepted but never checked, so
// any value 0-255 gets the same answer. Unknown function codes and writes get
// a protocol exception; framing errors are the library's problem and close
// the offending connection without touching the process.
package modbus

import (
	"fmt"
	"log"
	"time"

	"github.com/simonvetter/modbus"

	"solarsim/internal/model"
	"solarsim/internal/registers"
)

// StateReader is the read-only slice of the plant store the responder needs.
type StateReader interface {
	Get(plantID string) (model.PlantState, bool)
}

// Handler resolves register reads through the static map against live store
// snapshots. One instance serves every connection; it holds no per-request
// state.
type Handler struct {
	regs  *registers.Map
	store StateReader
}

func NewHandler(regs *registers.Map, store StateReader) *Handler {
	return &Handler{regs: regs, store: store}
}

func (h *Handler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	return h.read(req.Addr, req.Quantity)
}

func (h *Handler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return h.read(req.Addr, req.Quantity)
}

// read answers a register range. If any address in the range is unmapped the
// whole request fails with an illegal-address exception — no partial reads.
// Each plant's snapshot is fetched once and reused for every word of the
// request, so both halves of a float32 always come from the same published
// record even when a worker publish lands mid-request.
func (h *Handler) read(addr uint16, quantity uint16) ([]uint16, error) {
	if quantity == 0 || uint32(addr)+uint32(quantity) > 1<<16 {
		return nil, modbus.ErrIllegalDataAddress
	}

	snapshots := make(map[string]model.PlantState)
	out := make([]uint16, 0, quantity)
	for i := uint16(0); i < quantity; i++ {
		entry, word, err := h.regs.Resolve(addr + i)
		if err != nil {
			return nil, modbus.ErrIllegalDataAddress
		}

		state, ok := snapshots[entry.PlantID]
		if !ok {
			state, ok = h.store.Get(entry.PlantID)
			if !ok {
				return nil, modbus.ErrServerDeviceFailure
			}
			snapshots[entry.PlantID] = state
		}

		out = append(out, encodeWord(&state.Record, entry, word))
	}
	return out, nil
}

func encodeWord(rec *model.TelemetryRecord, entry registers.Entry, word uint8) uint16 {
	value := registers.Value(rec, entry.Metric)

	switch entry.Encoding {
	case registers.Float32BigEndian:
		hi, lo := registers.EncodeFloat32(float32(value))
		if word == 0 {
			return hi
		}
		return lo
	default:
		v, clamped := registers.EncodeUint16(value)
		if clamped {
			log.Printf("modbus: %s %s value %.2f clamped to %d", entry.PlantID, entry.Metric, value, v)
		}
		return v
	}
}

// Server wraps the TCP listener lifecycle around a Handler.
type Server struct {
	server *modbus.ModbusServer
	port   int
}

func NewServer(port int, timeout time.Duration, maxClients uint, handler *Handler) (*Server, error) {
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://0.0.0.0:%d", port),
		Timeout:    timeout,
		MaxClients: maxClients,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("modbus server: %w", err)
	}
	return &Server{server: srv, port: port}, nil
}

func (s *Server) Start() error {
	log.Printf("modbus TCP server listening on :%d", s.port)
	return s.server.Start()
}

func (s *Server) Stop() error {
	return s.server.Stop()
}
