package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Flag is a boolean column stored as a 0/1 SMALLINT and serialized as 0/1.
type Flag bool

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", data)
	}
	return nil
}

// Scan implements sql.Scanner.
func (f *Flag) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = false
	case int64:
		*f = v != 0
	case bool:
		*f = Flag(v)
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Flag", src)
	}
	return nil
}

func (f *Flag) parse(s string) error {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = n != 0
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("cannot scan %q into Flag", s)
	}
	*f = Flag(b)
	return nil
}

// Value implements driver.Valuer.
func (f Flag) Value() (driver.Value, error) {
	if f {
		return int64(1), nil
	}
	return int64(0), nil
}
