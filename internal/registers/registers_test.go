package registers

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarsim/internal/model"
)

func TestBuildBlockLayout(t *testing.T) {
	m, err := Build([]string{"plant-a", "plant-b"})
	require.NoError(t, err)

	t.Run("every block register resolves", func(t *testing.T) {
		for base, plant := range map[uint16]string{0: "plant-a", PlantStride: "plant-b"} {
			for off := uint16(0); off < BlockSize; off++ {
				entry, _, err := m.Resolve(base + off)
				require.NoError(t, err, "address %d must be mapped", base+off)
				assert.Equal(t, plant, entry.PlantID)
			}
		}
	})

	t.Run("gap between blocks is unmapped", func(t *testing.T) {
		for addr := uint16(BlockSize); addr < PlantStride; addr++ {
			_, _, err := m.Resolve(addr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAddressOutOfRange))
		}
	})

	t.Run("address past the last block is unmapped", func(t *testing.T) {
		_, _, err := m.Resolve(2*PlantStride + 5)
		assert.True(t, errors.Is(err, ErrAddressOutOfRange))
	})

	t.Run("entry count is plants times metrics", func(t *testing.T) {
		assert.Len(t, m.Entries(), 2*33)
	})

	t.Run("float entries span two words", func(t *testing.T) {
		eHi, wHi, err := m.Resolve(0)
		require.NoError(t, err)
		eLo, wLo, err := m.Resolve(1)
		require.NoError(t, err)
		assert.Equal(t, MetricPowerKW, eHi.Metric)
		assert.Equal(t, MetricPowerKW, eLo.Metric)
		assert.Equal(t, uint8(0), wHi)
		assert.Equal(t, uint8(1), wLo)
	})

	t.Run("status is a single register", func(t *testing.T) {
		e, w, err := m.Resolve(10)
		require.NoError(t, err)
		assert.Equal(t, MetricStatus, e.Metric)
		assert.Equal(t, UInt16Raw, e.Encoding)
		assert.Equal(t, uint8(0), w)
		assert.Equal(t, uint16(1), e.Registers)
	})
}

func TestBuildRejectsBadFleets(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)

	ids := make([]string, MaxPlants+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("plant-%d", i)
	}
	_, err = Build(ids)
	assert.Error(t, err)
}

func TestFloat32Encoding(t *testing.T) {
	t.Run("known bit patterns", func(t *testing.T) {
		hi, lo := EncodeFloat32(2000.0)
		assert.Equal(t, uint16(0x44FA), hi)
		assert.Equal(t, uint16(0x0000), lo)

		hi, lo = EncodeFloat32(800.0)
		assert.Equal(t, uint16(0x4448), hi)
		assert.Equal(t, uint16(0x0000), lo)

		hi, lo = EncodeFloat32(0)
		assert.Equal(t, uint16(0), hi)
		assert.Equal(t, uint16(0), lo)
	})

	t.Run("decode inverts encode", func(t *testing.T) {
		for _, v := range []float32{0, 1, -12.5, 875.0, 2000.0, 49.93, 1e-7, 65535.5} {
			hi, lo := EncodeFloat32(v)
			assert.Equal(t, v, DecodeFloat32(hi, lo))
		}
	})
}

func TestEncodeUint16(t *testing.T) {
	cases := []struct {
		in      float64
		want    uint16
		clamped bool
	}{
		{0, 0, false},
		{42.4, 42, false},
		{42.6, 43, false},
		{65535, 65535, false},
		{65536, 65535, true},
		{1e9, 65535, true},
		{-1, 0, true},
		{-0.4, 0, false},
		{math.NaN(), 0, true},
	}
	for _, c := range cases {
		got, clamped := EncodeUint16(c.in)
		assert.Equal(t, c.want, got, "EncodeUint16(%v)", c.in)
		assert.Equal(t, c.clamped, clamped, "EncodeUint16(%v) clamp flag", c.in)
	}
}

func TestValueExtraction(t *testing.T) {
	rec := model.TelemetryRecord{
		PowerKW:     123.5,
		FrequencyHz: 49.98,
		Status:      model.StatusRun,
		FaultCode:   507,
		AlarmFlags:  0x1_0005,
	}

	assert.Equal(t, 123.5, Value(&rec, MetricPowerKW))
	assert.Equal(t, 49.98, Value(&rec, MetricFrequencyHz))
	assert.Equal(t, 1.0, Value(&rec, MetricStatus))
	assert.Equal(t, 507.0, Value(&rec, MetricFaultCode))

	// Only the low 16 bits of the alarm mask fit the register.
	assert.Equal(t, float64(0x0005), Value(&rec, MetricAlarmFlags))
}
