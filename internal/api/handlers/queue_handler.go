package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/snapflow/snapflow/internal/queue"
)

type QueueHandler struct {
	stats func() queue.Stats
}

func NewQueueHandler(stats func() queue.Stats) *QueueHandler {
	return &QueueHandler{stats: stats}
}

func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	st := h.stats()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending":            st.Pending,
		"in_flight":          st.InFlight,
		"released_in_window": st.ReleasedInWindow,
		"window_start":       st.WindowStart,
	})
}
