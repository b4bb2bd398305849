// Package nvram models a small fixed-size, addressable, non-volatile byte array
// (RTC user RAM, EEPROM) with SQLite persistence and in-memory options.
package nvram

import "errors"

// DefaultSize matches the 31 bytes of user RAM on a DS1302 RTC.
const DefaultSize = 31

// Erased is the value a cell reads as before it is ever written.
const Erased byte = 0xFF

// ErrOutOfRange is returned for an index outside the store capacity.
var ErrOutOfRange = errors.New("nvram: cell index out of range")

// Store is the interface for single-byte cell access.
type Store interface {
	// Size returns the number of addressable cells.
	Size() int

	// ReadCell returns the value of cell idx, or Erased if it was never written.
	ReadCell(idx int) (byte, error)

	// WriteCell stores b in cell idx.
	WriteCell(idx int, b byte) error
}

// BatchWriter is implemented by stores that can write a run of consecutive
// cells atomically. Either all cells in the run are updated or none are.
type BatchWriter interface {
	WriteCells(start int, data []byte) error
}

func checkRange(size, idx, n int) error {
	if idx < 0 || n < 0 || idx+n > size {
		return ErrOutOfRange
	}
	return nil
}
