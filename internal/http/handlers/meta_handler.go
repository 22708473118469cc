package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/unlock"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

func (h *MetaHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// GetNetworks lists the chains rules may reference and which of them the setup wizard offers.
func (h *MetaHandler) GetNetworks(c *fiber.Ctx) error {
	setup := make(map[string]bool, len(models.SetupNetworks))
	for _, n := range models.SetupNetworks {
		setup[n] = true
	}

	out := make([]dto.NetworkInfo, 0, len(models.AllNetworks))
	for _, name := range models.AllNetworks {
		n, err := unlock.LookupNetwork(name)
		if err != nil {
			continue
		}
		out = append(out, dto.NetworkInfo{Name: n.Name, ChainID: n.CAIP2(), Setup: setup[name]})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
