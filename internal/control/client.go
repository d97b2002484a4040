package control

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hyperdesk/hyperdesk/internal/protocol"
)

// Client holds one connection to a remote control server.
type Client struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewClient returns an unconnected client.
func NewClient() *Client {
	return &Client{}
}

// Connect dials the control URL, e.g. "ws://192.168.1.100:8765/".
func (c *Client) Connect(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return fmt.Errorf("control client already connected")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = DialTimeout
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	c.ws = ws
	return nil
}

// Send encodes and writes one message.
func (c *Client) Send(messageType string, payload protocol.Payload, requestID string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("control client not connected")
	}

	data, err := protocol.Encode(messageType, payload, requestID)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Recv blocks for the next inbound message.
func (c *Client) Recv() (*protocol.Message, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, fmt.Errorf("control client not connected")
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read control frame: %w", err)
	}
	return protocol.Decode(data)
}

// Disconnect closes the connection. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws = nil
	return err
}
