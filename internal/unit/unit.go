// Package unit holds the fixed table of measurement units a simulated sensor
// can report in, and the physical quantity each unit measures.
package unit

import (
	"strings"

	"codeberg.org/mutker/sensorsim/internal/errors"
)

// Unit is a measurement unit drawn from a fixed table.
type Unit int

// Quantity is the physical property a unit measures.
type Quantity int

const (
	Celsius Unit = iota + 1
	Fahrenheit
	CubicMetersPerHour
)

const (
	Temperature Quantity = iota + 1
	VolumetricFlow
)

type entry struct {
	name     string
	symbol   string
	quantity Quantity
}

var table = map[Unit]entry{
	Celsius:            {name: "celsius", symbol: "°C", quantity: Temperature},
	Fahrenheit:         {name: "fahrenheit", symbol: "°F", quantity: Temperature},
	CubicMetersPerHour: {name: "m3_per_hour", symbol: "m³/h", quantity: VolumetricFlow},
}

var quantityNames = map[Quantity]string{
	Temperature:    "temperature",
	VolumetricFlow: "volumetric_flow",
}

// All returns every known unit in table order.
func All() []Unit {
	return []Unit{Celsius, Fahrenheit, CubicMetersPerHour}
}

// Parse looks a unit up by its canonical name, ignoring case.
func Parse(name string) (Unit, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for u, e := range table {
		if e.name == name {
			return u, nil
		}
	}

	return 0, errors.New().WithData(errors.ErrInvalidUnit, name)
}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	_, ok := table[u]
	return ok
}

// Quantity returns the physical quantity measured in u.
func (u Unit) Quantity() Quantity {
	return table[u].quantity
}

// Symbol returns the display symbol, e.g. "°C".
func (u Unit) Symbol() string {
	return table[u].symbol
}

func (u Unit) String() string {
	if e, ok := table[u]; ok {
		return e.name
	}
	return "unknown"
}

func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, errors.New().WithData(errors.ErrInvalidUnit, int(u))
	}
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (q Quantity) String() string {
	if name, ok := quantityNames[q]; ok {
		return name
	}
	return "unknown"
}
