package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Instant is a wall-clock time carried on the wire as Unix milliseconds,
// which is what the browser clients produce with Date.now().
type Instant struct {
	time.Time
}

// NewInstant truncates t to millisecond precision and strips the monotonic
// reading so that in-memory and persisted values compare equal.
func NewInstant(t time.Time) Instant {
	return Instant{Time: t.Round(0).UTC().Truncate(time.Millisecond)}
}

// InstantPtr is a convenience for optional fields.
func InstantPtr(t time.Time) *Instant {
	in := NewInstant(t)
	return &in
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(i.UnixMilli(), 10)), nil
}

// UnmarshalJSON accepts a millisecond number or an RFC 3339 string.
func (i *Instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*i = Instant{Time: time.UnixMilli(ms).UTC()}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid instant %q: %w", s, err)
		}
		*i = NewInstant(t)
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid instant: %w", err)
	}
	*i = Instant{Time: time.UnixMilli(int64(ms)).UTC()}
	return nil
}

// EncodeMsgpack stores the same millisecond value the JSON form uses.
func (i Instant) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(i.UnixMilli())
}

func (i *Instant) DecodeMsgpack(dec *msgpack.Decoder) error {
	ms, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*i = Instant{Time: time.UnixMilli(ms).UTC()}
	return nil
}
