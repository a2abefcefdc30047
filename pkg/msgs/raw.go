package msgs

import "encoding/hex"

// Raw is a task message holding opaque bytes.
type Raw struct {
	data []byte
}

// NewRaw creates a Raw with a copy of data.
func NewRaw(data []byte) *Raw {
	r := &Raw{}
	r.Set(data)
	return r
}

// Bytes returns a copy of the contents.
func (r *Raw) Bytes() []byte {
	return append([]byte(nil), r.data...)
}

// Set replaces the contents with a copy of data.
func (r *Raw) Set(data []byte) {
	r.data = append(r.data[:0], data...)
}

// Marshal implements task.Message.
func (r *Raw) Marshal() ([]byte, error) {
	return append([]byte(nil), r.data...), nil
}

// Unmarshal implements task.Message.
func (r *Raw) Unmarshal(data []byte) error {
	r.Set(data)
	return nil
}

// Reset implements task.Message.
func (r *Raw) Reset() {
	r.data = r.data[:0]
}

// String implements fmt.Stringer.
func (r *Raw) String() string {
	return hex.EncodeToString(r.data)
}
