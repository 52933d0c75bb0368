package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/snapflow/snapflow/internal/lifecycle"
	"github.com/snapflow/snapflow/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// serviceError maps service errors to HTTP statuses.
func serviceError(c *fiber.Ctx, err error) error {
	var ve service.ValidationError
	var ite *lifecycle.ErrInvalidTransition

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": ve.Error(),
		})
	case errors.As(err, &ite):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": ite.Error(),
		})
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, service.ErrAssetNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Something went wrong",
		})
	}
}
