package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/snapflow/snapflow/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	userID := GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	asset, err := h.s.Upload(c.Context(), userID, file)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(asset)
}

func (h *MediaHandler) AssetInfo(c *fiber.Ctx) error {
	userID := GetUserID(c)
	assetID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid asset id",
		})
	}

	asset, err := h.s.AssetInfo(c.Context(), int64(assetID), userID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(asset)
}

func (h *MediaHandler) Remove(c *fiber.Ctx) error {
	userID := GetUserID(c)
	assetID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid asset id",
		})
	}

	if err := h.s.Remove(c.Context(), userID, int64(assetID)); err != nil {
		return serviceError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
