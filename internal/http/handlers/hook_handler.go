package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/middleware"
	"github.com/members-only/backend/internal/services"
	"github.com/members-only/backend/internal/unlock"
	"go.uber.org/zap"
)

const castCreated = "cast.created"

type CastDispatcher interface {
	OnSetupCast(ctx context.Context, cast services.Cast) (*services.Result, error)
	OnCastCreated(ctx context.Context, cast services.Cast) (*services.Result, error)
}

type HookHandler struct {
	casts CastDispatcher
	log   *zap.Logger
}

func NewHookHandler(casts CastDispatcher, log *zap.Logger) *HookHandler {
	return &HookHandler{casts: casts, log: log}
}

// Setup answers only the lead's setup phrase.
func (h *HookHandler) Setup(c *fiber.Ctx) error {
	return h.dispatch(c, "setup", h.casts.OnSetupCast)
}

// Validate gates every cast on membership.
func (h *HookHandler) Validate(c *fiber.Ctx) error {
	return h.dispatch(c, "validate", h.casts.OnCastCreated)
}

func (h *HookHandler) dispatch(c *fiber.Ctx, hook string, fn func(context.Context, services.Cast) (*services.Result, error)) error {
	var payload dto.WebhookCast
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid webhook payload"})
	}
	if payload.Type != castCreated {
		return c.JSON(services.Result{Outcome: services.OutcomeIgnored, Message: "unsupported event type " + payload.Type})
	}

	cast := services.Cast{
		Hash:          payload.Data.Hash,
		Text:          payload.Data.Text,
		AuthorFID:     payload.Data.Author.FID,
		RootParentURL: payload.Data.RootParentURL,
	}
	res, err := fn(c.UserContext(), cast)
	if err != nil {
		reqID := middleware.GetRequestID(c)
		h.log.Error("webhook handling failed",
			zap.String("hook", hook),
			zap.String("request_id", reqID),
			zap.String("cast_hash", cast.Hash),
			zap.Int64("author_fid", cast.AuthorFID),
			zap.Error(err),
		)
		if errors.Is(err, unlock.ErrUnsupportedNetwork) {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error", RequestID: reqID})
		}
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "upstream call failed", RequestID: reqID})
	}
	return c.JSON(res)
}
