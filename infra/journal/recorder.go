package journal

import (
	"context"

	"github.com/kilianp07/smartshift/core/engine"
	"github.com/kilianp07/smartshift/core/logger"
	coremon "github.com/kilianp07/smartshift/core/monitoring"
	"github.com/kilianp07/smartshift/internal/eventbus"
)

// Start appends every event of bus to store until ctx is canceled or the
// bus is closed and drained. Events published while an append is running
// wait in the listener queue. Append failures are logged and reported,
// never fatal.
func Start(ctx context.Context, store Store, bus *eventbus.TypedBus[engine.Event], log logger.Logger) <-chan struct{} {
	log = logger.OrNop(log)
	return eventbus.Listen(ctx, bus, func(ev engine.Event) {
		if err := store.Append(context.WithoutCancel(ctx), FromEvent(ev)); err != nil {
			log.Errorf("journal %s: %v", ev.Kind, err)
			coremon.Capture("journal", "append", err)
		}
	})
}
