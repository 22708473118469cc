package handlers

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/neynar"
	"github.com/members-only/backend/internal/unlock"
	"go.uber.org/zap"
)

type LockReader interface {
	LockInfo(ctx context.Context, network string, lock common.Address) (*unlock.LockInfo, error)
}

type ActionValidator interface {
	ValidateFrameAction(ctx context.Context, messageBytesHex string) (*neynar.FrameValidation, error)
}

// TxHandler answers Frame tx buttons with unsigned call descriptions.
type TxHandler struct {
	locks     LockReader
	validator ActionValidator
	builder   *unlock.TxBuilder
	log       *zap.Logger
}

func NewTxHandler(locks LockReader, validator ActionValidator, builder *unlock.TxBuilder, log *zap.Logger) *TxHandler {
	return &TxHandler{locks: locks, validator: validator, builder: builder, log: log}
}

type txParams struct {
	network string
	lock    common.Address
	price   *big.Int
}

func (h *TxHandler) params(c *fiber.Ctx) (*txParams, bool) {
	network := c.Params("network")
	if _, err := unlock.LookupNetwork(network); err != nil {
		return nil, false
	}
	lock := c.Params("lock")
	if !common.IsHexAddress(lock) {
		return nil, false
	}
	p := &txParams{network: network, lock: common.HexToAddress(lock)}
	if raw := c.Params("price"); raw != "" {
		price, ok := new(big.Int).SetString(raw, 10)
		if !ok || price.Sign() < 0 {
			return nil, false
		}
		p.price = price
	}
	return p, true
}

// sender resolves the wallet that will sign: the connected address reported
// with the action, else the interactor's first verified address.
func (h *TxHandler) sender(c *fiber.Ctx) (common.Address, int, error) {
	var body dto.FrameRequest
	if err := c.BodyParser(&body); err != nil || body.TrustedData.MessageBytes == "" {
		return common.Address{}, fiber.StatusBadRequest, errors.New("invalid frame payload")
	}
	v, err := h.validator.ValidateFrameAction(c.UserContext(), body.TrustedData.MessageBytes)
	if err != nil {
		h.log.Warn("tx: frame validation failed", zap.Error(err))
		return common.Address{}, fiber.StatusBadGateway, errors.New("frame validation unavailable")
	}
	if !v.Valid {
		return common.Address{}, fiber.StatusUnauthorized, errors.New("invalid frame signature")
	}
	if common.IsHexAddress(v.Action.Address) {
		return common.HexToAddress(v.Action.Address), 0, nil
	}
	if addrs := v.InteractorAddresses(); len(addrs) > 0 {
		return common.HexToAddress(addrs[0]), 0, nil
	}
	return common.Address{}, fiber.StatusBadRequest, errors.New("no verified address")
}

func (h *TxHandler) lockInfo(c *fiber.Ctx, p *txParams) (*unlock.LockInfo, error) {
	info, err := h.locks.LockInfo(c.UserContext(), p.network, p.lock)
	if err != nil {
		h.log.Error("tx: lock info failed",
			zap.String("network", p.network),
			zap.String("lock", p.lock.Hex()),
			zap.Error(err),
		)
	}
	return info, err
}

func (h *TxHandler) respond(c *fiber.Ctx, kind string, tx *frame.Transaction, err error) error {
	if err != nil {
		h.log.Error("tx: build failed", zap.String("kind", kind), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(tx)
}

func (h *TxHandler) Purchase(c *fiber.Ctx) error {
	p, ok := h.params(c)
	if !ok || p.price == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction parameters"})
	}
	recipient, status, err := h.sender(c)
	if err != nil {
		return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	info, err := h.lockInfo(c, p)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "lock unavailable"})
	}
	tx, err := h.builder.Purchase(p.network, p.lock, recipient, p.price, info.IsNative())
	return h.respond(c, "purchase", tx, err)
}

func (h *TxHandler) Renew(c *fiber.Ctx) error {
	p, ok := h.params(c)
	if !ok || p.price == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction parameters"})
	}
	tokenID, ok := new(big.Int).SetString(c.Params("tokenId"), 10)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid token id"})
	}
	if _, status, err := h.sender(c); err != nil {
		return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	info, err := h.lockInfo(c, p)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "lock unavailable"})
	}
	tx, err := h.builder.Renew(p.network, p.lock, tokenID, p.price, info.IsNative())
	return h.respond(c, "renew", tx, err)
}

func (h *TxHandler) Approve(c *fiber.Ctx) error {
	p, ok := h.params(c)
	if !ok || p.price == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction parameters"})
	}
	if _, status, err := h.sender(c); err != nil {
		return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	info, err := h.lockInfo(c, p)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "lock unavailable"})
	}
	if info.IsNative() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "lock is priced in the native currency"})
	}
	tx, err := h.builder.Approve(p.network, info.TokenAddress, p.lock, p.price)
	return h.respond(c, "approve", tx, err)
}

func (h *TxHandler) ReferrerFee(c *fiber.Ctx) error {
	p, ok := h.params(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction parameters"})
	}
	if _, status, err := h.sender(c); err != nil {
		return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	tx, err := h.builder.SetReferrerFee(p.network, p.lock)
	return h.respond(c, "referrer-fee", tx, err)
}
