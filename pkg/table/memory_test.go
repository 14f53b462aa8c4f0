package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.NoError(t, m.WriteCell(ctx, 2, Measurement, Number(10)))
	c, err := m.ReadCell(ctx, 2, Measurement)
	assert.NoError(t, err)
	assert.Equal(t, Number(10), c)

	// unwritten addresses read as empty
	c, err = m.ReadCell(ctx, 40, Label)
	assert.NoError(t, err)
	assert.True(t, c.IsEmpty())

	// writing an empty cell clears the address
	assert.NoError(t, m.WriteCell(ctx, 2, Measurement, Empty()))
	c, _ = m.ReadCell(ctx, 2, Measurement)
	assert.True(t, c.IsEmpty())

	_, err = m.ReadCell(ctx, 0, Measurement)
	assert.Error(t, err)
}

func TestMemoryReadColumn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryFromValues([]float64{10, 12, 11})
	_ = m.WriteCell(ctx, 6, Measurement, Number(13))

	cells, err := m.ReadColumn(ctx, Measurement, 2, 6)
	assert.NoError(t, err)
	assert.Equal(t, []Cell{Number(10), Number(12), Number(11), Empty(), Number(13)}, cells)

	_, err = m.ReadColumn(ctx, Measurement, 6, 2)
	assert.Error(t, err)
}

func TestMemoryWriteRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryFromValues([]float64{10, 12, 11, 13, 12, 14, 13, 15})
	rw := RangeWrite{DPA: 12.5, MRA: 1.57, LCL: 8.32, DLA: 10.41, DUA: 14.59, UCL: 16.68, MRUCL: 5.14, Label: "Baseline"}
	assert.NoError(t, m.WriteRange(ctx, 2, 9, rw))

	for row := 2; row <= 9; row++ {
		c, _ := m.ReadCell(ctx, row, DPA)
		assert.Equal(t, Number(12.5), c)
		c, _ = m.ReadCell(ctx, row, Label)
		assert.Equal(t, Text("Baseline"), c)
		// per-row columns stay untouched
		c, _ = m.ReadCell(ctx, row, MovingRange)
		assert.True(t, c.IsEmpty())
		c, _ = m.ReadCell(ctx, row, Signal)
		assert.True(t, c.IsEmpty())
	}
	c, _ := m.ReadCell(ctx, 2, Measurement)
	assert.Equal(t, Number(10), c)

	// rows outside the range stay untouched
	c, _ = m.ReadCell(ctx, 10, DPA)
	assert.True(t, c.IsEmpty())

	assert.Error(t, m.WriteRange(ctx, 9, 2, rw))
}

func TestMemoryLastRow(t *testing.T) {
	ctx := context.Background()

	m := NewMemory()
	last, err := m.LastRow(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, last)

	m = NewMemoryFromValues([]float64{10, 12, 11})
	_ = m.WriteCell(ctx, 9, Measurement, Number(15))
	// rows holding only derived cells are not measurements
	_ = m.WriteCell(ctx, 12, Label, Text("Baseline"))
	last, err = m.LastRow(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 9, last)
}
