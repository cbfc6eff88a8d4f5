package postgres

import (
	"context"
	"encoding/json"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// AppendAudit inserts one audit entry. The log is append-only.
func (r *txRepo) AppendAudit(ctx context.Context, entry *repository.ApprovalAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (tenant_id, instance_id, step_id, action, performed_by, comment, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, performed_at`

	err := r.tx.QueryRow(ctx, query,
		entry.TenantID,
		entry.InstanceID,
		entry.StepID,
		entry.Action,
		entry.PerformedBy,
		entry.Comment,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListAudit returns an instance's audit trail oldest-first.
func (r *txRepo) ListAudit(ctx context.Context, tenantID, instanceID string) ([]*repository.ApprovalAuditEntry, error) {
	query := `
		SELECT id::text, tenant_id, instance_id::text, step_id::text,
		       action, performed_by, performed_at, comment, metadata
		FROM approval_audit_log
		WHERE tenant_id = $1 AND instance_id = $2
		ORDER BY performed_at ASC`

	rows, err := r.tx.Query(ctx, query, tenantID, instanceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*repository.ApprovalAuditEntry
	for rows.Next() {
		entry := &repository.ApprovalAuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.InstanceID,
			&entry.StepID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.Comment,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
