package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// Value is a tri-state indicator value. The zero Value is undefined, which
// means the trailing window was too short or the formula divided by zero.
type Value struct {
	V       float64
	Defined bool
}

// Undefined is the explicit "not computable" value.
var Undefined = Value{}

// NewValue wraps v. NaN and infinities collapse to Undefined.
func NewValue(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{V: v, Defined: true}
}

// Float returns the value and whether it is defined.
func (v Value) Float() (float64, bool) {
	return v.V, v.Defined
}

// MarshalJSON encodes undefined values as null
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes null as undefined
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = NewValue(f)
	return nil
}

// Column is one indicator series aligned to the bars of an InstrumentSeries.
type Column []Value

// NewColumn returns a column of n undefined values
func NewColumn(n int) Column {
	return make(Column, n)
}

// At returns the value at i, or Undefined when i is out of range.
func (c Column) At(i int) Value {
	if i < 0 || i >= len(c) {
		return Undefined
	}
	return c[i]
}

// DefinedAt reports whether every index in idx holds a defined value.
func (c Column) DefinedAt(idx ...int) bool {
	for _, i := range idx {
		if !c.At(i).Defined {
			return false
		}
	}
	return true
}

// FirstDefined returns the first defined index, or -1.
func (c Column) FirstDefined() int {
	for i, v := range c {
		if v.Defined {
			return i
		}
	}
	return -1
}

// Last returns the final value of the column.
func (c Column) Last() Value {
	return c.At(len(c) - 1)
}
