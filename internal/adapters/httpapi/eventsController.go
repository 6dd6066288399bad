package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"credpost/internal/core/event"
	eventsPort "credpost/internal/ports/events"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EventsController struct {
	bus    eventsPort.Bus
	ping   time.Duration
	logger *zap.Logger
}

func NewEventsController(bus eventsPort.Bus, ping time.Duration, logger *zap.Logger) *EventsController {
	return &EventsController{bus: bus, ping: ping, logger: logger}
}

// Stream pushes bus events to the browser as server-sent events: "contract"
// for chain events, "reset" when the session is torn down.
func (ctl *EventsController) Stream(c *gin.Context) {
	ch := make(chan event.Event, 16)
	sub, err := ctl.bus.Subscribe(func(_ context.Context, ev event.Event) {
		select {
		case ch <- ev:
		default:
			// slow client, drop
		}
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable", "code": "internal"})
		return
	}
	defer sub.Unsubscribe()

	ticker := time.NewTicker(ctl.ping)
	defer ticker.Stop()

	ctl.logger.Debug("SSE client attached", zap.String("subscription", sub.ID()))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-ch:
			name := "contract"
			if ev.Kind == event.SessionReset {
				name = "reset"
			}
			c.SSEvent(name, ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
