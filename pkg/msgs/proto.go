package msgs

import (
	"fmt"
	"reflect"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
)

// Proto is a task message backed by a protobuf message.
type Proto struct {
	msg proto.Message
}

// NewProto wraps m.
func NewProto(m proto.Message) *Proto {
	return &Proto{msg: m}
}

// NewProtoByName creates a Proto holding an empty message of the
// registered type name, e.g. "google.protobuf.FloatValue".
func NewProtoByName(name string) (*Proto, error) {
	m, err := NewMessageByName(name)
	if err != nil {
		return nil, err
	}
	return NewProto(m), nil
}

// Proto returns the wrapped message.
func (p *Proto) Proto() proto.Message {
	return p.msg
}

// Marshal implements task.Message.
func (p *Proto) Marshal() ([]byte, error) {
	return proto.Marshal(p.msg)
}

// Unmarshal implements task.Message.
func (p *Proto) Unmarshal(data []byte) error {
	return proto.Unmarshal(data, p.msg)
}

// Reset implements task.Message.
func (p *Proto) Reset() {
	p.msg.Reset()
}

// Set replaces the contents with a copy of m.
func (p *Proto) Set(m proto.Message) {
	p.msg.Reset()
	proto.Merge(p.msg, m)
}

// MarshalJSON encodes the contents using the protobuf JSON mapping.
func (p *Proto) MarshalJSON() ([]byte, error) {
	str, err := (&jsonpb.Marshaler{OrigName: true}).MarshalToString(p.msg)
	if err != nil {
		return nil, err
	}
	return []byte(str), nil
}

// UnmarshalJSON replaces the contents with the decoded JSON.
func (p *Proto) UnmarshalJSON(data []byte) error {
	p.msg.Reset()
	return jsonpb.UnmarshalString(string(data), p.msg)
}

// String implements fmt.Stringer.
func (p *Proto) String() string {
	return proto.CompactTextString(p.msg)
}

// ErrUnknownType indicates the message type is not registered.
type ErrUnknownType struct {
	Name string
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Name)
}

// NewMessageByName creates an empty message of a registered type.
func NewMessageByName(name string) (proto.Message, error) {
	typ := proto.MessageType(name)
	if typ == nil {
		return nil, &ErrUnknownType{Name: name}
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	m, ok := reflect.New(typ).Interface().(proto.Message)
	if !ok {
		return nil, &ErrUnknownType{Name: name}
	}
	return m, nil
}
