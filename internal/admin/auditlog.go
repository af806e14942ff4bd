package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
)

// ActionFlag classifies an admin_log entry.
type ActionFlag int

const (
	ActionAddition        ActionFlag = 1
	ActionChange          ActionFlag = 2
	ActionDeletion        ActionFlag = 3
	ActionLogicalDeletion ActionFlag = 4
	ActionRestore         ActionFlag = 5
)

func (f ActionFlag) String() string {
	switch f {
	case ActionAddition:
		return "addition"
	case ActionChange:
		return "change"
	case ActionDeletion:
		return "deletion"
	case ActionLogicalDeletion:
		return "logical deletion"
	case ActionRestore:
		return "restore"
	}
	return fmt.Sprintf("ActionFlag(%d)", int(f))
}

// LogEntry is one row of admin_log.
type LogEntry struct {
	ID            int64
	ActionTime    time.Time
	OperatorID    string
	Model         string
	ObjectID      string
	ObjectRepr    string
	ActionFlag    ActionFlag
	ChangeMessage string
}

// AuditRepository stores admin_log entries over a dbx.DBTX (*sql.DB or *sql.Tx).
type AuditRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewAuditRepository(db dbx.DBTX, dialect dbx.Dialect) *AuditRepository {
	return &AuditRepository{db: db, dialect: dialect}
}

// Create inserts e and fills its ID.
func (r *AuditRepository) Create(ctx context.Context, e *LogEntry) error {
	query := r.dialect.Rebind(`
		INSERT INTO admin_log (action_time, operator_id, model, object_id, object_repr, action_flag, change_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	err := r.db.QueryRowContext(ctx, query,
		e.ActionTime, e.OperatorID, e.Model, e.ObjectID, e.ObjectRepr, int(e.ActionFlag), e.ChangeMessage).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByModel returns the entries about model, oldest first.
func (r *AuditRepository) ListByModel(ctx context.Context, model string) ([]*LogEntry, error) {
	query := r.dialect.Rebind(`
		SELECT id, action_time, operator_id, model, object_id, object_repr, action_flag, change_message
		FROM admin_log WHERE model = ? ORDER BY id`)

	rows, err := r.db.QueryContext(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*LogEntry
	for rows.Next() {
		var item LogEntry
		var flag int
		if err := rows.Scan(&item.ID, &item.ActionTime, &item.OperatorID, &item.Model,
			&item.ObjectID, &item.ObjectRepr, &flag, &item.ChangeMessage); err != nil {
			return nil, err
		}
		item.ActionFlag = ActionFlag(flag)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
