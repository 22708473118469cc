package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/auth"
	"github.com/members-only/backend/internal/http/dto"
	"go.uber.org/zap"
)

// WebhookSignatureMiddleware rejects webhook deliveries whose X-Neynar-Signature
// does not match the raw body. An empty secret disables the check.
func WebhookSignatureMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		if err := auth.VerifyWebhookSignature(secret, c.Body(), c.Get(auth.WebhookSignatureHeader)); err != nil {
			log.Warn("webhook signature rejected",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
		}
		return c.Next()
	}
}
