package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/auth"
	"github.com/members-only/backend/internal/config"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxFID  = "fid"
	CtxRole = "role"
)

// AuthMiddleware accepts admin API bearer tokens minted by cmd/admin-token.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid or expired token"})
		}

		c.Locals(CtxFID, claims.FID)
		c.Locals(CtxRole, claims.Role)

		return c.Next()
	}
}

func GetFID(c *fiber.Ctx) int64 {
	fid, _ := c.Locals(CtxFID).(int64)
	return fid
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// AdminMiddleware requires the token's fid to still be listed in ADMIN_FIDS.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rbac.RoleFor(GetFID(c), 0, cfg.IsAdmin) != rbac.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
		}
		return c.Next()
	}
}

func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), perm) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "permission denied"})
		}
		return c.Next()
	}
}
