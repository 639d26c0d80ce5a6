package params

import "encoding/json"

const redacted = "[redacted]"

// Secret holds a plaintext credential. Every formatting path redacts it;
// only Reveal returns the value.
type Secret struct {
	value string
}

// NewSecret wraps a plaintext value.
func NewSecret(v string) Secret {
	return Secret{value: v}
}

// Reveal returns the plaintext. Call it only where the value leaves the
// process: the parameter artifact and the workload driver.
func (s Secret) Reveal() string {
	return s.value
}

// Empty reports whether no value is held.
func (s Secret) Empty() bool {
	return s.value == ""
}

func (s Secret) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer so %#v stays redacted.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalLog implements logr.Marshaler.
func (s Secret) MarshalLog() any {
	return s.String()
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
