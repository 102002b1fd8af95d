package domain

import "fmt"

// ControlKind is a request from the control surface
type ControlKind string

const (
	ControlStartChatPolling  ControlKind = "START_CHAT_POLLING"
	ControlStopChatPolling   ControlKind = "STOP_CHAT_POLLING"
	ControlStartVideoPolling ControlKind = "START_VIDEO_POLLING"
	ControlStopVideoPolling  ControlKind = "STOP_VIDEO_POLLING"
	ControlGetPollingState   ControlKind = "GET_POLLING_STATE"
	ControlPanelOpen         ControlKind = "PANEL_OPEN"
	ControlPanelClosed       ControlKind = "PANEL_CLOSED"
	ControlResetWorker       ControlKind = "RESET_WORKER"
)

// ParseControlKind validates a control message type
func ParseControlKind(s string) (ControlKind, error) {
	switch k := ControlKind(s); k {
	case ControlStartChatPolling, ControlStopChatPolling,
		ControlStartVideoPolling, ControlStopVideoPolling,
		ControlGetPollingState, ControlPanelOpen, ControlPanelClosed,
		ControlResetWorker:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownControl, s)
	}
}

// PollingView answers GET_POLLING_STATE and every toggle
type PollingView struct {
	ChatPollingEnabled  bool   `json:"chatPollingEnabled"`
	VideoPollingEnabled bool   `json:"videoPollingEnabled"`
	ClientID            string `json:"clientId,omitempty"`
	PanelOpen           bool   `json:"panelOpen"`
}
