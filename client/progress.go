package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ProgressEvent is one execution update pushed by the backend over its
// websocket while a job runs.
type ProgressEvent struct {
	// JobID of the running job, when the message carries one.
	JobID string
	// NodeID currently executing; empty once the job finishes.
	NodeID string
	// Value and Max report step progress for messages of type "progress".
	Value int
	Max   int
	// Done is set when the backend signals execution finished.
	Done bool
}

// wsMessage is the envelope shape of every websocket message.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ListenProgress connects to the backend's websocket and forwards progress
// events to fn until the context is cancelled or the connection drops.
// Blocking; callers run it in a goroutine.  The websocket is an optional
// enhancement over history polling, so a failed dial is returned for logging
// rather than treated as fatal by callers.
func (c *Client) ListenProgress(ctx context.Context, fn func(ProgressEvent)) error {
	wsurl := fmt.Sprintf("ws://%s/ws?clientId=%s", c.addr(), c.clientID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsurl, nil)
	if err != nil {
		return &ConnectionError{Addr: c.addr(), Err: err}
	}
	defer conn.Close()
	c.logger.Debug("websocket connected", zap.String("url", wsurl))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		mtype, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ConnectionError{Addr: c.addr(), Err: err}
		}
		// binary frames carry preview image data; not used here
		if mtype != websocket.TextMessage {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("unparsable websocket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "progress":
			var d struct {
				Value    int    `json:"value"`
				Max      int    `json:"max"`
				PromptID string `json:"prompt_id"`
				Node     string `json:"node"`
			}
			if json.Unmarshal(msg.Data, &d) == nil {
				fn(ProgressEvent{JobID: d.PromptID, NodeID: d.Node, Value: d.Value, Max: d.Max})
			}
		case "executing":
			var d struct {
				Node     *string `json:"node"`
				PromptID string  `json:"prompt_id"`
			}
			if json.Unmarshal(msg.Data, &d) == nil {
				ev := ProgressEvent{JobID: d.PromptID}
				if d.Node == nil {
					ev.Done = true
				} else {
					ev.NodeID = *d.Node
				}
				fn(ev)
			}
		case "execution_error":
			var d struct {
				PromptID string `json:"prompt_id"`
				Message  string `json:"exception_message"`
			}
			if json.Unmarshal(msg.Data, &d) == nil {
				c.logger.Warn("execution error reported",
					zap.String("job_id", d.PromptID), zap.String("message", d.Message))
			}
		}
	}
}
