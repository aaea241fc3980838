package modbus

import (
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarsim/internal/model"
	"solarsim/internal/registers"
)

// fakeStore serves fixed records to the handler.
type fakeStore struct {
	states map[string]model.PlantState
}

func (f *fakeStore) Get(plantID string) (model.PlantState, bool) {
	st, ok := f.states[plantID]
	return st, ok
}

func testHandler(t *testing.T) *Handler {
	t.Helper()

	regs, err := registers.Build([]string{"alpha", "beta"})
	require.NoError(t, err)

	alpha := model.TelemetryRecord{
		PowerKW:     2000.0,
		VoltageL1V:  231.4,
		FrequencyHz: 49.93,
		Status:      model.StatusRun,
		FaultCode:   0,
	}
	beta := model.TelemetryRecord{
		PowerKW:   800.0,
		Status:    model.StatusFault,
		FaultCode: 507,
	}

	return NewHandler(regs, &fakeStore{states: map[string]model.PlantState{
		"alpha": {PlantID: "alpha", Record: alpha},
		"beta":  {PlantID: "beta", Record: beta},
	}})
}

func TestReadFloatRegisters(t *testing.T) {
	h := testHandler(t)

	vals, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x44FA, 0x0000}, vals)

	// Second plant's block starts one stride up.
	vals, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: registers.PlantStride, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x4448, 0x0000}, vals)
}

func TestReadSingleWordOfFloat(t *testing.T) {
	h := testHandler(t)

	hi, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: 1})
	require.NoError(t, err)
	lo, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 1, Quantity: 1})
	require.NoError(t, err)

	assert.Equal(t, float32(2000.0), registers.DecodeFloat32(hi[0], lo[0]))
}

func TestReadStatusAndFaultCode(t *testing.T) {
	h := testHandler(t)

	vals, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 10, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{uint16(model.StatusRun)}, vals)

	vals, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: registers.PlantStride + 55, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{507}, vals)
}

func TestHoldingAndInputAnswerIdentically(t *testing.T) {
	h := testHandler(t)

	for _, addr := range []uint16{0, 6, 10, registers.PlantStride} {
		in, errIn := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: addr, Quantity: 2})
		hold, errHold := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{Addr: addr, Quantity: 2})
		require.NoError(t, errIn)
		require.NoError(t, errHold)
		assert.Equal(t, in, hold, "address %d", addr)
	}
}

func TestUnitIDIsIgnored(t *testing.T) {
	h := testHandler(t)

	a, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{UnitId: 1, Addr: 0, Quantity: 2})
	require.NoError(t, err)
	b, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{UnitId: 247, Addr: 0, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmappedAddressFailsWholeRequest(t *testing.T) {
	h := testHandler(t)

	// First address past the block.
	_, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: registers.BlockSize, Quantity: 1})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	// Range starting inside the block but spilling into the gap: no partial
	// answer.
	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: registers.BlockSize - 2, Quantity: 4})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	// Far beyond the last plant.
	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 10_000, Quantity: 2})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)
}

func TestDegenerateQuantities(t *testing.T) {
	h := testHandler(t)

	_, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: 0})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	// Address plus quantity overflowing the 16-bit space must not wrap.
	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0xFFFF, Quantity: 2})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)
}

func TestWritesAndBitFunctionsRejected(t *testing.T) {
	h := testHandler(t)

	_, err := h.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{Addr: 0, Quantity: 1, IsWrite: true, Args: []uint16{1}})
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)

	_, err = h.HandleCoils(&modbus.CoilsRequest{Addr: 0, Quantity: 1})
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)

	_, err = h.HandleDiscreteInputs(&modbus.DiscreteInputsRequest{Addr: 0, Quantity: 1})
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)
}

func TestWholeBlockRead(t *testing.T) {
	h := testHandler(t)

	vals, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: registers.BlockSize})
	require.NoError(t, err)
	require.Len(t, vals, registers.BlockSize)

	assert.Equal(t, float32(2000.0), registers.DecodeFloat32(vals[0], vals[1]))
	assert.Equal(t, float32(231.4), registers.DecodeFloat32(vals[2], vals[3]))
	assert.Equal(t, float32(49.93), registers.DecodeFloat32(vals[6], vals[7]))
	assert.Equal(t, uint16(model.StatusRun), vals[10])
}

// flippingStore swaps to a second record after the first Get, simulating a
// worker publish landing in the middle of a multi-register request.
type flippingStore struct {
	first, second model.PlantState
	calls         int
}

func (f *flippingStore) Get(plantID string) (model.PlantState, bool) {
	f.calls++
	if f.calls == 1 {
		return f.first, true
	}
	return f.second, true
}

func TestFloatWordsComeFromOneSnapshot(t *testing.T) {
	regs, err := registers.Build([]string{"alpha"})
	require.NoError(t, err)

	store := &flippingStore{
		first:  model.PlantState{PlantID: "alpha", Record: model.TelemetryRecord{PowerKW: 2000.3}},
		second: model.PlantState{PlantID: "alpha", Record: model.TelemetryRecord{PowerKW: 800.7}},
	}
	h := NewHandler(regs, store)

	vals, err := h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: 2})
	require.NoError(t, err)

	// Both halves must decode to a value that was actually published, never a
	// mix of the two records' words.
	assert.Equal(t, float32(2000.3), registers.DecodeFloat32(vals[0], vals[1]))
	assert.Equal(t, 1, store.calls)
}

func TestMissingPlantIsDeviceFailure(t *testing.T) {
	regs, err := registers.Build([]string{"alpha"})
	require.NoError(t, err)

	h := NewHandler(regs, &fakeStore{states: map[string]model.PlantState{}})

	_, err = h.HandleInputRegisters(&modbus.InputRegistersRequest{Addr: 0, Quantity: 2})
	assert.ErrorIs(t, err, modbus.ErrServerDeviceFailure)
}
