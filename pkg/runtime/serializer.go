package runtime

import (
	"strconv"
	"strings"
	"time"
)

// Time marshals as RFC3339 with nanoseconds, the wire format of every
// timestamp this service emits.
type Time time.Time

func (t *Time) UnmarshalJSON(bytes []byte) error {
	ft, err := time.Parse(time.RFC3339Nano, strings.Trim(string(bytes), `"`))
	if err != nil {
		return err
	}
	*t = Time(ft)
	return nil
}

func (t *Time) MarshalJSON() ([]byte, error) {
	ft := (*time.Time)(t).Format(time.RFC3339Nano)
	return []byte(strconv.Quote(ft)), nil
}
