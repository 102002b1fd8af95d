package worker

import (
	"context"
	"fmt"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// consumeMessages applies adapter messages one at a time, in arrival order
func (w *Worker) consumeMessages(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("Adapter message consumer started")

	msgs := w.surface.Messages()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Adapter message consumer stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn("Adapter message channel closed")
				return
			}
			w.handleMessage(ctx, msg)
		}
	}
}

func typeName(msg domain.AdapterMessage) string {
	return fmt.Sprintf("%T", msg)
}
