package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/controller"
)

// Input message types accepted from websocket clients.
const (
	MsgPress      = "press"
	MsgButtonDown = "button_down"
	MsgButtonUp   = "button_up"
	MsgStick      = "stick"
	MsgTriggers   = "triggers"
	MsgReset      = "reset"
	MsgError      = "error"
)

// InputMessage is one controller command from a client.
type InputMessage struct {
	Type   string  `json:"type"`
	Button string  `json:"button,omitempty"`
	Side   string  `json:"side,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	L2     float64 `json:"l2,omitempty"`
	R2     float64 `json:"r2,omitempty"`
}

// ErrorMessage is sent back when an input message cannot be applied.
type ErrorMessage struct {
	Type    string `json:"type"`
	Input   string `json:"input,omitempty"`
	Message string `json:"message"`
}

// handleInput applies one client message and returns the reply payload, if
// any.
func (h *Hub) handleInput(data []byte) []byte {
	var msg InputMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply("", fmt.Errorf("invalid message: %w", err))
	}
	if err := apply(h.ctrl, msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("relay input rejected")
		return errorReply(msg.Type, err)
	}
	return nil
}

func apply(ctrl *controller.Controller, msg InputMessage) error {
	if ctrl == nil {
		return fmt.Errorf("no controller attached")
	}
	switch msg.Type {
	case MsgPress:
		return ctrl.Press(context.Background(), msg.Button)
	case MsgButtonDown, MsgButtonUp:
		b, err := controller.ParseButton(msg.Button)
		if err != nil {
			return err
		}
		if msg.Type == MsgButtonDown {
			return ctrl.ButtonDown(b)
		}
		return ctrl.ButtonUp(b)
	case MsgStick:
		switch msg.Side {
		case "left":
			return ctrl.SetLeftStick(msg.X, msg.Y)
		case "right":
			return ctrl.SetRightStick(msg.X, msg.Y)
		default:
			return fmt.Errorf("unknown stick %q", msg.Side)
		}
	case MsgTriggers:
		return ctrl.SetTriggers(msg.L2, msg.R2)
	case MsgReset:
		return ctrl.Reset()
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func errorReply(input string, err error) []byte {
	b, _ := json.Marshal(ErrorMessage{Type: MsgError, Input: input, Message: err.Error()})
	return b
}
