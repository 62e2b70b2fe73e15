// Package ws provides a WebSocket client for the parrot gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/dohr-michael/parrot/internal/events"
	wsprotocol "github.com/dohr-michael/parrot/internal/gateway/ws"
	"github.com/dohr-michael/parrot/internal/relay"
)

// Client is a WebSocket client for the parrot gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{conn: conn, ctx: clientCtx, cancel: cancel}, nil
}

// SendMessage asks the gateway to answer content in conversation. An empty
// conversation uses the connection's own. It returns the request id.
func (c *Client) SendMessage(content, conversation string) (string, error) {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))

	frame, err := wsprotocol.NewRequestFrame(id, wsprotocol.MethodSendMessage, wsprotocol.SendMessageParams{
		Content:      content,
		Conversation: conversation,
	})
	if err != nil {
		return "", err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	return id, c.conn.Write(c.ctx, websocket.MessageText, data)
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Ask sends content and calls onSentence for each streamed sentence of the
// reply. It returns the final assistant message once the reply is complete.
func (c *Client) Ask(content, conversation string, onSentence func(string)) (events.AssistantMessagePayload, error) {
	reqID, err := c.SendMessage(content, conversation)
	if err != nil {
		return events.AssistantMessagePayload{}, fmt.Errorf("send message: %w", err)
	}

	var key string
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return events.AssistantMessagePayload{}, err
		}

		switch frame.Type {
		case wsprotocol.FrameTypeResponse:
			if frame.ID != reqID {
				continue
			}
			if frame.OK == nil || !*frame.OK {
				return events.AssistantMessagePayload{}, fmt.Errorf("gateway rejected message: %s", frame.Error)
			}
			var res wsprotocol.SendMessageResult
			if err := json.Unmarshal(frame.Payload, &res); err != nil {
				return events.AssistantMessagePayload{}, fmt.Errorf("decode response: %w", err)
			}
			key = relay.WSKeyPrefix + res.Conversation

		case wsprotocol.FrameTypeEvent:
			// events of other conversations share the connection
			if key == "" || frame.SessionID != key {
				continue
			}
			evt, ok := toEvent(frame)
			if !ok {
				continue
			}
			switch evt.Type {
			case events.EventAssistantStream:
				p, ok := events.GetAssistantStreamPayload(evt)
				if ok && p.Phase == events.StreamPhaseDelta && onSentence != nil {
					onSentence(p.Content)
				}
			case events.EventAssistantMessage:
				p, ok := events.GetAssistantMessagePayload(evt)
				if !ok {
					return p, errors.New("malformed assistant message")
				}
				if p.Error != "" {
					return p, fmt.Errorf("assistant error: %s", p.Error)
				}
				return p, nil
			}
		}
	}
}

func toEvent(f wsprotocol.Frame) (events.Event, bool) {
	var payload map[string]any
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return events.Event{}, false
	}
	return events.Event{
		Type:      events.EventType(f.Event),
		SessionID: f.SessionID,
		Payload:   payload,
	}, true
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
