package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// AuditRepository appends compliance records. There is deliberately no
// update or delete path.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit record.
func (r *AuditRepository) Create(ctx context.Context, log *entities.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, actor, actor_type, target_id, target_type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.Action, log.Actor, log.ActorType, log.TargetID, log.TargetType, log.Detail, log.CreatedAt)
	return err
}

// List returns audit records matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter entities.AuditFilter) ([]*entities.AuditLog, error) {
	query := `SELECT id, action, actor, actor_type, target_id, target_type, detail, created_at
		FROM audit_logs WHERE 1=1`
	args := []interface{}{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.Action != nil {
		add(" AND action = $%d", *filter.Action)
	}
	if filter.Actor != nil {
		add(" AND actor = $%d", *filter.Actor)
	}
	if filter.ActorType != nil {
		add(" AND actor_type = $%d", *filter.ActorType)
	}
	if filter.TargetID != nil {
		add(" AND target_id = $%d", *filter.TargetID)
	}
	if filter.From != nil {
		add(" AND created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(" AND created_at < $%d", *filter.To)
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	add(" LIMIT $%d", limit)
	if filter.Offset > 0 {
		add(" OFFSET $%d", filter.Offset)
	}

	var out []*entities.AuditLog
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
