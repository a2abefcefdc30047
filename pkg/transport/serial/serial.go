// Package serial opens the device link over a local serial port.
package serial

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/robotalks/taskbridge/pkg/transport"
)

// Defaults for Config.
const (
	DefaultBaudRate = 9600
	DefaultSearch   = "Arduino"
)

// Config specifies which port to open and how.
type Config struct {
	// Device is the port name, e.g. /dev/ttyACM0. Empty means discover.
	Device string
	// BaudRate of the link.
	BaudRate int
	// Search is matched against port descriptions during discovery.
	Search string
}

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name        string
	Description string
	IsUSB       bool
	VID         string
	PID         string
	Serial      string
}

// String implements fmt.Stringer.
func (p PortInfo) String() string {
	if p.IsUSB {
		return fmt.Sprintf("%s: %s [%s:%s %s]", p.Name, p.Description, p.VID, p.PID, p.Serial)
	}
	if p.Description != "" {
		return p.Name + ": " + p.Description
	}
	return p.Name
}

var listPorts = enumerator.GetDetailedPortsList

var openPort = func(name string, mode *serial.Mode) (transport.Port, error) {
	return serial.Open(name, mode)
}

// Ports enumerates serial ports on the system.
func Ports() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, &transport.Error{Op: "enumerate", Err: err}
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:        d.Name,
			Description: d.Product,
			IsUSB:       d.IsUSB,
			VID:         d.VID,
			PID:         d.PID,
			Serial:      d.SerialNumber,
		})
	}
	return ports, nil
}

// FindPort returns the name of the first port whose description
// (or name) contains search.
func FindPort(search string) (string, error) {
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if strings.Contains(p.Description, search) || strings.Contains(p.Name, search) {
			return p.Name, nil
		}
	}
	return "", &transport.Error{Op: "discover", Err: fmt.Errorf("%w matching %q", transport.ErrNoDevice, search)}
}

// Open opens the port specified by cfg, discovering it if needed.
func Open(cfg Config) (*transport.Stream, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	name := cfg.Device
	if name == "" {
		search := cfg.Search
		if search == "" {
			search = DefaultSearch
		}
		found, err := FindPort(search)
		if err != nil {
			return nil, err
		}
		glog.Infof("discovered serial port %s matching %q", found, search)
		name = found
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(name, mode)
	if err != nil {
		return nil, &transport.Error{Op: "open " + name, Err: err}
	}
	glog.Infof("opened serial port %s at %d baud", name, cfg.BaudRate)
	return transport.NewStream(port), nil
}
