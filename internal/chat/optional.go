package chat

import "encoding/json"

// Optional is a three-state string field: not provided, explicitly null, or
// a value. Scope resolution treats "the caller said nothing" and "the caller
// said none" differently, so the distinction has to survive JSON decoding.
type Optional struct {
	provided bool
	value    *string
}

func NotProvided() Optional {
	return Optional{}
}

func Null() Optional {
	return Optional{provided: true}
}

func Value(s string) Optional {
	return Optional{provided: true, value: &s}
}

// Provided reports whether the field was present at all, null included.
func (o Optional) Provided() bool {
	return o.provided
}

// Ptr returns the value, or nil when null or not provided.
func (o Optional) Ptr() *string {
	if o.value == nil {
		return nil
	}
	v := *o.value
	return &v
}

// UnmarshalJSON is only invoked for keys present in the payload, so the zero
// value keeps meaning "not provided".
func (o *Optional) UnmarshalJSON(b []byte) error {
	o.provided = true
	if string(b) == "null" {
		o.value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.value = &s
	return nil
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if o.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.value)
}
