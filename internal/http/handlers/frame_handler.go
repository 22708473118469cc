package handlers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/wizard"
	"go.uber.org/zap"
)

// Stepper advances a Frame wizard by one click.
type Stepper interface {
	Step(ctx context.Context, req wizard.Request) (*frame.Screen, error)
}

type FrameHandler struct {
	setup    Stepper
	purchase Stepper
	baseURL  string
	assets   string
	log      *zap.Logger
}

func NewFrameHandler(setup, purchase Stepper, baseURL, assetsURL string, log *zap.Logger) *FrameHandler {
	return &FrameHandler{setup: setup, purchase: purchase, baseURL: baseURL, assets: assetsURL, log: log}
}

func (h *FrameHandler) Setup(c *fiber.Ctx) error {
	return h.serve(c, "setup", h.setup)
}

func (h *FrameHandler) Purchase(c *fiber.Ctx) error {
	return h.serve(c, "purchase", h.purchase)
}

func (h *FrameHandler) serve(c *fiber.Ctx, flow string, wiz Stepper) error {
	channelID := c.Params("channelId")
	if channelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "channel id is required"})
	}

	req := wizard.Request{ChannelID: channelID}
	if c.Method() == fiber.MethodPost {
		var body dto.FrameRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid frame payload"})
		}
		req.Value = c.Query(frame.ValueParam)
		req.MessageHex = body.TrustedData.MessageBytes
	}

	screen, err := wiz.Step(c.UserContext(), req)
	if err != nil {
		h.log.Error("frame step failed",
			zap.String("flow", flow),
			zap.String("channel_id", channelID),
			zap.String("value", req.Value),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	page, err := frame.Render(screen, frame.RenderOptions{
		PostURL:      fmt.Sprintf("%s/api/%s/%s", h.baseURL, flow, channelID),
		ImageBaseURL: h.assets,
	})
	if err != nil {
		h.log.Error("frame render failed", zap.String("flow", flow), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}
