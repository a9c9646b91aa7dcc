package attendance

import "time"

// Direction marks a punch as clock-in or clock-out.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Punch is one raw clock event from a hardware terminal.
type Punch struct {
	EmployeeCode string
	Timestamp    time.Time
	Direction    Direction
	DeviceSerial string
}
