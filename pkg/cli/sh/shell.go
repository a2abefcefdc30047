package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/taskbridge/pkg/env"
	"github.com/robotalks/taskbridge/pkg/scheduler"
	"github.com/robotalks/taskbridge/pkg/task"
	"github.com/robotalks/taskbridge/pkg/transport/serial"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session

	// OpenScheduler opens the device, defaults to Config.NewScheduler.
	OpenScheduler func(*env.Config) (*scheduler.Scheduler, error)
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&SendCmd,
		&ListenCmd,
		&QueueCmd,
		&CancelCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// ParseID parses a task ID in decimal or 0x hex.
func ParseID(str string) (task.ID, error) {
	n, err := strconv.ParseUint(str, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", str)
	}
	return task.ID(n), nil
}

// Print writes v as JSON or in plain text depending on OutputJSON.
func (s *Shell) Print(c *ishell.Context, v interface{}, plain func()) {
	if !s.OutputJSON {
		plain()
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// DoCommand runs fn on the session loop and reports errors.
func DoCommand(c *ishell.Context, fn func(*Session) (interface{}, error)) (interface{}, error) {
	val, err := ShellFrom(c).Session.Do(fn, DefaultCommandTimeout)
	if err != nil {
		c.Err(err)
	}
	return val, err
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the device and starts the scheduler.
// The current device is closed first, serial ports can't be opened twice.
func (s *Shell) Connect(device string) error {
	conf := *s.Config
	if device != "" {
		conf.Device = device
	}
	s.Disconnect()
	open := s.OpenScheduler
	if open == nil {
		open = (*env.Config).NewScheduler
	}
	sched, err := open(&conf)
	if err != nil {
		return err
	}
	sess := NewSession(conf.Device, sched, conf.NewLoop())
	sess.Output = func(id task.ID, payload []byte) {
		if s.OutputJSON {
			s.printf("{\"id\":%d,\"payload\":%q}\n", id, hex.EncodeToString(payload))
			return
		}
		s.printf("RX %d: % x\n", id, payload)
	}
	sess.Start()
	s.Session = sess
	go func() {
		<-sess.Done()
		if err := LoopExitError(sess.Err()); err != nil && s.Interactive {
			s.printf("disconnected: %v\n", err)
		}
	}()
	name := conf.Device
	if name == "" {
		name = conf.PortSearch
	}
	s.setPrompt(fmt.Sprintf("%s > ", name))
	return nil
}

// Disconnect stops the scheduler and closes the device.
func (s *Shell) Disconnect() {
	if s.Session != nil {
		s.Session.Stop()
		s.Session = nil
		s.setPrompt(unconnectedPrompt)
	}
}

// LoopExitError filters out the error of a loop stopped on request.
func LoopExitError(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Shell) printf(format string, args ...interface{}) {
	if s.Shell != nil {
		s.Shell.Printf(format, args...)
	}
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if err := s.Connect(""); err != nil {
			if !s.Interactive {
				log.Fatalf("connect failed: %v", err)
			}
			s.Shell.Printf("connect failed: %v\n", err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"p"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				ports = []serial.PortInfo{}
			}
			s.Print(c, ports, func() {
				if len(ports) == 0 {
					c.Println("No ports found")
				}
				for _, port := range ports {
					c.Println(port.String())
				}
			})
		},
	}

	// ConnectCmd opens a device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[DEVICE]",
		Func: func(c *ishell.Context) {
			var device string
			if len(c.Args) > 0 {
				device = c.Args[0]
			}
			if err := ShellFrom(c).Connect(device); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// SendCmd schedules a Tx task.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "ID [HEX]",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("task id required"))
				return
			}
			id, err := ParseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var data []byte
			if len(c.Args) > 1 {
				if data, err = hex.DecodeString(c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}
			val, err := DoCommand(c, func(s *Session) (interface{}, error) {
				return s.Send(id, data)
			})
			if err == nil && !val.(bool) {
				c.Println("already pending, payload updated")
			}
		}),
	}

	// ListenCmd prints frames of an Rx task.
	ListenCmd = ishell.Cmd{
		Name:    "listen",
		Aliases: []string{"l"},
		Help:    "ID",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("task id required"))
				return
			}
			id, err := ParseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			DoCommand(c, func(s *Session) (interface{}, error) {
				return nil, s.Listen(id)
			})
		}),
	}

	// QueueCmd shows pending Tx tasks.
	QueueCmd = ishell.Cmd{
		Name:    "queue",
		Aliases: []string{"q"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			val, err := DoCommand(c, func(s *Session) (interface{}, error) {
				return s.Pending(), nil
			})
			if err != nil {
				return
			}
			items := val.([]PendingItem)
			ShellFrom(c).Print(c, items, func() {
				if len(items) == 0 {
					c.Println("Queue is empty")
				}
				for _, item := range items {
					c.Printf("%d %s\n", item.ID, item.Payload)
				}
			})
		}),
	}

	// CancelCmd drops a pending Tx task.
	CancelCmd = ishell.Cmd{
		Name:    "cancel",
		Aliases: []string{"x"},
		Help:    "ID",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("task id required"))
				return
			}
			id, err := ParseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			val, err := DoCommand(c, func(s *Session) (interface{}, error) {
				return s.Cancel(id)
			})
			if err == nil && !val.(bool) {
				c.Println("not pending")
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
