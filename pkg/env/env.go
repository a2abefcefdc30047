// Package env assembles a scheduler and its collaborators from flags
// and environment variables.
package env

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	// Registers google.protobuf wrapper types used in bindings.
	_ "github.com/golang/protobuf/ptypes/wrappers"

	"github.com/robotalks/taskbridge/pkg/bridge/mqtt"
	fx "github.com/robotalks/taskbridge/pkg/framework"
	"github.com/robotalks/taskbridge/pkg/scheduler"
	"github.com/robotalks/taskbridge/pkg/transport"
	"github.com/robotalks/taskbridge/pkg/transport/serial"
	"github.com/robotalks/taskbridge/pkg/transport/websocket"
)

// Config provides options to bring up a scheduler.
type Config struct {
	// Device is a serial port name, tcp://host:port or ws(s)://host/path.
	// Empty means discover a serial port by PortSearch.
	Device     string
	BaudRate   int
	PortSearch string

	ChannelOpenBudget time.Duration
	RetryInterval     time.Duration
	InterByteGap      time.Duration
	TickInterval      time.Duration

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// Bindings is the path of the topic bindings file.
	Bindings string
	ClientID string
}

var defaultConfig = Config{
	BaudRate:          serial.DefaultBaudRate,
	PortSearch:        serial.DefaultSearch,
	ChannelOpenBudget: scheduler.DefaultChannelOpenBudget,
	RetryInterval:     scheduler.DefaultRetryInterval,
	TickInterval:      fx.DefaultLoopInterval,
	MQTTBrokerURL:     "mqtt://localhost:1883/taskbridge/",
}

func init() {
	if val := os.Getenv("TASKBRIDGE_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("TASKBRIDGE_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		}
	}
	if val := os.Getenv("TASKBRIDGE_PORT_SEARCH"); val != "" {
		defaultConfig.PortSearch = val
	}
	if val := os.Getenv("TASKBRIDGE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("TASKBRIDGE_BINDINGS"); val != "" {
		defaultConfig.Bindings = val
	}
	if id := MachineID(); id != "" {
		defaultConfig.ClientID = "taskbridge:" + id
	}
}

// MachineID retrieves the unique ID identifying the machine.
// It returns empty string if unavailable.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		glog.V(1).Infof("machine id unavailable: %v", err)
		return ""
	}
	return id
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device, tcp://host:port or ws://host/path")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate")
	flag.StringVar(&defaultConfig.PortSearch, "port-search", defaultConfig.PortSearch, "Port description to search when device is not specified")
	flag.DurationVar(&defaultConfig.ChannelOpenBudget, "channel-open", defaultConfig.ChannelOpenBudget, "Max time collecting one inbound frame")
	flag.DurationVar(&defaultConfig.RetryInterval, "retry-interval", defaultConfig.RetryInterval, "Retransmission interval of unacknowledged tasks")
	flag.DurationVar(&defaultConfig.InterByteGap, "inter-byte-gap", defaultConfig.InterByteGap, "Wait for more bytes of a frame")
	flag.DurationVar(&defaultConfig.TickInterval, "tick", defaultConfig.TickInterval, "Scheduler tick interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.Bindings, "bindings", defaultConfig.Bindings, "Topic bindings file (JSON)")
	flag.StringVar(&defaultConfig.ClientID, "client-id", defaultConfig.ClientID, "MQTT client ID")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// SerialConfig extracts the serial port settings.
func (c *Config) SerialConfig() serial.Config {
	return serial.Config{Device: c.Device, BaudRate: c.BaudRate, Search: c.PortSearch}
}

// SchedulerConfig extracts the scheduler timing.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		ChannelOpenBudget: c.ChannelOpenBudget,
		RetryInterval:     c.RetryInterval,
	}
}

var (
	dialTCP       = transport.Dial
	dialWebSocket = websocket.Dial
	openSerial    = serial.Open
)

// OpenTransport opens the device link selected by Device.
func (c *Config) OpenTransport() (*transport.Stream, error) {
	var (
		stream *transport.Stream
		err    error
	)
	switch {
	case strings.HasPrefix(c.Device, "tcp://"):
		u, perr := url.Parse(c.Device)
		if perr != nil {
			return nil, fmt.Errorf("invalid device URL: %w", perr)
		}
		stream, err = dialTCP(u.Host)
	case strings.HasPrefix(c.Device, "ws://"), strings.HasPrefix(c.Device, "wss://"):
		stream, err = dialWebSocket(c.Device, "")
	default:
		stream, err = openSerial(c.SerialConfig())
	}
	if err != nil {
		return nil, err
	}
	stream.InterByteGap = c.InterByteGap
	return stream, nil
}

// NewScheduler opens the transport and creates a Scheduler over it.
func (c *Config) NewScheduler() (*scheduler.Scheduler, error) {
	tr, err := c.OpenTransport()
	if err != nil {
		return nil, err
	}
	return scheduler.New(tr, scheduler.WithConfig(c.SchedulerConfig())), nil
}

// MustNewScheduler creates Scheduler and fails on error.
func (c *Config) MustNewScheduler() *scheduler.Scheduler {
	s, err := c.NewScheduler()
	if err != nil {
		log.Fatalln(err)
	}
	return s
}

// NewLoop creates a Loop ticking at TickInterval.
func (c *Config) NewLoop() *fx.Loop {
	loop := fx.NewLoop()
	if c.TickInterval > 0 {
		loop.Interval = c.TickInterval
	}
	return loop
}

// NewBridge loads bindings and connects them to the MQTT broker.
// The returned Queue is already connected.
func (c *Config) NewBridge(sched *scheduler.Scheduler) (*mqtt.Bridge, *mqtt.Queue, error) {
	if c.Bindings == "" {
		return nil, nil, fmt.Errorf("bindings file is required")
	}
	bindings, err := mqtt.LoadBindingsFile(c.Bindings)
	if err != nil {
		return nil, nil, err
	}
	queue, err := mqtt.NewQueueFromURL(c.MQTTBrokerURL, c.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	bridge, err := mqtt.New(sched, queue, bindings)
	if err != nil {
		return nil, nil, err
	}
	if err := queue.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect MQTT broker error: %w", err)
	}
	return bridge, queue, nil
}
