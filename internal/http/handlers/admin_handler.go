package handlers

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/membership"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/services"
	"go.uber.org/zap"
)

type AuditReader interface {
	GetByChannel(ctx context.Context, channelID string, limit, offset int) ([]models.AuditLog, error)
}

type MemberProber interface {
	Probe(ctx context.Context, address string, rule models.ChannelAccessRule) (*membership.Probe, error)
}

type AdminHandler struct {
	rules  services.RuleLister
	audit  AuditReader
	prober MemberProber
	log    *zap.Logger
}

func NewAdminHandler(rules services.RuleLister, audit AuditReader, prober MemberProber, log *zap.Logger) *AdminHandler {
	return &AdminHandler{rules: rules, audit: audit, prober: prober, log: log}
}

func (h *AdminHandler) GetRules(c *fiber.Ctx) error {
	channelID := c.Params("channelId")
	rules, err := h.rules.List(c.UserContext(), channelID)
	if err != nil {
		h.log.Error("list rules failed", zap.String("channel_id", channelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rules})
}

func (h *AdminHandler) GetAudit(c *fiber.Ctx) error {
	channelID := c.Params("channelId")
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.audit.GetByChannel(c.UserContext(), channelID, limit, offset)
	if err != nil {
		h.log.Error("get audit failed", zap.String("channel_id", channelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

// ProbeMember reads the address's key state on every rule of the channel.
func (h *AdminHandler) ProbeMember(c *fiber.Ctx) error {
	channelID := c.Params("channelId")
	address := c.Params("address")
	if !common.IsHexAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid address"})
	}

	rules, err := h.rules.List(c.UserContext(), channelID)
	if err != nil {
		h.log.Error("list rules failed", zap.String("channel_id", channelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	probes := make([]*membership.Probe, 0, len(rules))
	for _, rule := range rules {
		p, err := h.prober.Probe(c.UserContext(), address, rule)
		if err != nil {
			h.log.Error("probe failed",
				zap.String("channel_id", channelID),
				zap.String("network", rule.Network),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
		}
		probes = append(probes, p)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: probes})
}
