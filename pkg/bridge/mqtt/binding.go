package mqtt

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/robotalks/taskbridge/pkg/task"
)

// Binding maps an MQTT topic onto a task.
type Binding struct {
	ID        task.ID `json:"id"`
	Direction string  `json:"direction"`
	Topic     string  `json:"topic"`
	// Type is the registered protobuf message name.
	Type string `json:"type"`
}

// TaskDirection parses Direction.
func (b *Binding) TaskDirection() (task.Direction, error) {
	switch b.Direction {
	case "rx":
		return task.Rx, nil
	case "tx":
		return task.Tx, nil
	}
	return 0, fmt.Errorf("binding %d: invalid direction %q", b.ID, b.Direction)
}

// Validate checks required fields.
func (b *Binding) Validate() error {
	if _, err := b.TaskDirection(); err != nil {
		return err
	}
	if b.Topic == "" {
		return fmt.Errorf("binding %d: topic is required", b.ID)
	}
	if b.Type == "" {
		return fmt.Errorf("binding %d: type is required", b.ID)
	}
	return nil
}

// LoadBindings decodes a JSON array of bindings.
func LoadBindings(r io.Reader) ([]Binding, error) {
	var bindings []Binding
	if err := json.NewDecoder(r).Decode(&bindings); err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}
	for i := range bindings {
		if err := bindings[i].Validate(); err != nil {
			return nil, err
		}
	}
	return bindings, nil
}

// LoadBindingsFile reads bindings from a file.
func LoadBindingsFile(fn string) ([]Binding, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadBindings(f)
}
