package sunrise

// Cell layout in the byte store, one byte per field.
const (
	CellHour = iota
	CellMinute
	CellDuration
	CellKeepOn
	CellUTCOffset

	CellCount
)

// Encode lays the config out as CellCount bytes. The UTC offset is stored
// as a two's-complement signed byte; the other fields as unsigned bytes.
// Fields are truncated to a byte, so only valid configs round-trip.
func Encode(c Config) [CellCount]byte {
	return [CellCount]byte{
		CellHour:      byte(c.Hour),
		CellMinute:    byte(c.Minute),
		CellDuration:  byte(c.DurationMinutes),
		CellKeepOn:    byte(c.KeepLightOnMinutes),
		CellUTCOffset: byte(int8(c.UTCOffset)),
	}
}

// Decode is the inverse of Encode. It does not validate.
func Decode(cells [CellCount]byte) Config {
	return Config{
		Hour:               int(cells[CellHour]),
		Minute:             int(cells[CellMinute]),
		DurationMinutes:    int(cells[CellDuration]),
		KeepLightOnMinutes: int(cells[CellKeepOn]),
		UTCOffset:          int(int8(cells[CellUTCOffset])),
	}
}
