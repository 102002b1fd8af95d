package browser

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/runtime"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// bindingName is the CDP runtime binding the bridge sends messages through
const bindingName = "__grokBridgeSend"

//go:embed bridge.js
var bridgeScript string

const pingMessage = `{"type":"PING"}`

// pingResponse is the adapter's answer to PING
type pingResponse struct {
	Ready bool `json:"ready"`
}

func (r pingResponse) check() error {
	if !r.Ready {
		return errors.New("adapter did not report ready")
	}
	return nil
}

// dispatchExpression builds the script that hands payload to the page's
// message listeners and resolves with their response
func dispatchExpression(payload []byte) string {
	return fmt.Sprintf(
		"window.__grokBridge ? window.__grokBridge.dispatch(%s) : Promise.reject(new Error(%q))",
		payload, "bridge not installed",
	)
}

func startPayload(msg domain.StartMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start message: %w", err)
	}
	return payload, nil
}

// awaitPromise makes Evaluate wait for the returned promise to settle
func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
