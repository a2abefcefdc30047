// Package websocket reaches the device through a serial-to-WebSocket adapter.
package websocket

import (
	"net/url"

	"golang.org/x/net/websocket"

	"github.com/robotalks/taskbridge/pkg/transport"
)

// Dial connects to the adapter at rawURL. Bytes travel in binary frames.
// When origin is empty it is derived from rawURL.
func Dial(rawURL, origin string) (*transport.Stream, error) {
	if origin == "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &transport.Error{Op: "dial", Err: err}
		}
		scheme := "http"
		if u.Scheme == "wss" {
			scheme = "https"
		}
		origin = scheme + "://" + u.Host
	}
	conn, err := websocket.Dial(rawURL, "", origin)
	if err != nil {
		return nil, &transport.Error{Op: "dial", Err: err}
	}
	return New(conn), nil
}

// New wraps an established websocket.Conn.
func New(conn *websocket.Conn) *transport.Stream {
	conn.PayloadType = websocket.BinaryFrame
	return transport.NewStream(transport.ConnPort(conn))
}
