package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/members-only/backend/internal/models"
)

// ErrRuleExists is returned by Insert when the channel already has a rule for the contract.
var ErrRuleExists = errors.New("rule already exists for this contract")

const uniqueViolation = "23505"

type RuleRepo struct {
	pool  *pgxpool.Pool
	limit int
}

// NewRuleRepo returns a repo whose List reads at most limit rules per channel.
func NewRuleRepo(pool *pgxpool.Pool, limit int) *RuleRepo {
	return &RuleRepo{pool: pool, limit: limit}
}

// List returns the channel's rules, most recent first.
func (r *RuleRepo) List(ctx context.Context, channelID string) ([]models.ChannelAccessRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, network, contract_address, operator, rule_behavior, created_at
		FROM channel_access_rules
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, channelID, r.limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.ChannelAccessRule
	for rows.Next() {
		var rule models.ChannelAccessRule
		if err := rows.Scan(&rule.ID, &rule.ChannelID, &rule.Network, &rule.ContractAddress,
			&rule.Operator, &rule.RuleBehavior, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepo) Count(ctx context.Context, channelID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM channel_access_rules WHERE channel_id = $1`, channelID).Scan(&n)
	return n, err
}

func (r *RuleRepo) Exists(ctx context.Context, channelID, contractAddress string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM channel_access_rules WHERE channel_id = $1 AND contract_address = $2)
	`, channelID, models.NormalizeAddress(contractAddress)).Scan(&exists)
	return exists, err
}

func (r *RuleRepo) Insert(ctx context.Context, rule *models.ChannelAccessRule) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO channel_access_rules (channel_id, network, contract_address, operator, rule_behavior)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rule.ChannelID, rule.Network, models.NormalizeAddress(rule.ContractAddress),
		rule.Operator, rule.RuleBehavior,
	).Scan(&rule.ID, &rule.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrRuleExists
	}
	return err
}

// Delete removes the channel's rule for contractAddress. Deleting a missing rule is not an error.
func (r *RuleRepo) Delete(ctx context.Context, channelID, contractAddress string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM channel_access_rules WHERE channel_id = $1 AND contract_address = $2
	`, channelID, models.NormalizeAddress(contractAddress))
	return err
}

// ChannelsWithRules lists every channel id that has at least one rule.
func (r *RuleRepo) ChannelsWithRules(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT channel_id FROM channel_access_rules ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
