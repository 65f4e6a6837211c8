package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Direction is the side of a position: long or short.
type Direction int

const (
	Long Direction = iota
	Short
)

// ParseDirection accepts the spellings users actually type: "buy"/"long"
// open longs, "sell"/"short" open shorts.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG":
		return Long, nil
	case "SELL", "SHORT":
		return Short, nil
	}
	return Long, fmt.Errorf("unsupported direction: %q", raw)
}

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// MarshalJSON writes the direction as "LONG" or "SHORT".
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts any spelling ParseDirection does. Unknown values
// decode as long, matching how legacy records were repaired on load.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		parsed = Long
	}
	*d = parsed
	return nil
}
