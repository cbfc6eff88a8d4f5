package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

const instanceColumns = `
	i.id::text, i.tenant_id, i.subject_type, i.subject_id, i.status::text,
	i.created_by, i.created_at, i.updated_at`

const stepColumns = `
	id::text, instance_id::text, step_name, sequence, approver_id,
	status::text, acted_by, actioned_at, comment, is_proxy, created_at`

// CreateInstance inserts an instance and its steps. The unique constraint on
// (tenant_id, subject_type, subject_id) makes a second insert a no-op.
func (r *txRepo) CreateInstance(ctx context.Context, inst *repository.ApprovalInstance) (bool, error) {
	instQuery := `
		INSERT INTO approval_instances
		    (tenant_id, subject_type, subject_id, status, created_by)
		VALUES ($1, $2, $3, $4::approval_instance_status, $5)
		ON CONFLICT (tenant_id, subject_type, subject_id) DO NOTHING
		RETURNING id::text, created_at, updated_at`

	err := r.tx.QueryRow(ctx, instQuery,
		inst.TenantID,
		inst.SubjectType,
		inst.SubjectID,
		inst.Status,
		inst.CreatedBy,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval instance")
	}

	stepQuery := `
		INSERT INTO approval_steps
		    (instance_id, step_name, sequence, approver_id, status,
		     acted_by, actioned_at, comment)
		VALUES ($1, $2, $3, $4, $5::approval_step_status, $6, $7, $8)
		RETURNING id::text, created_at`

	for _, step := range inst.Steps {
		step.InstanceID = inst.ID
		err := r.tx.QueryRow(ctx, stepQuery,
			step.InstanceID,
			step.StepName,
			step.Sequence,
			step.ApproverID,
			step.Status,
			step.ActedBy,
			step.ActionedAt,
			step.Comment,
		).Scan(&step.ID, &step.CreatedAt)
		if err != nil {
			return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
		}
	}

	return true, nil
}

func (r *txRepo) GetInstance(ctx context.Context, tenantID, id string) (*repository.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances i
		WHERE i.id = $1 AND i.tenant_id = $2
		FOR UPDATE`

	inst, err := scanInstance(r.tx.QueryRow(ctx, query, id, tenantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("approval_instance", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval instance")
	}
	if err := r.loadSteps(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *txRepo) GetInstanceBySubject(ctx context.Context, tenantID string, subjectType repository.SubjectType, subjectID string) (*repository.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances i
		WHERE i.tenant_id = $1 AND i.subject_type = $2 AND i.subject_id = $3`

	inst, err := scanInstance(r.tx.QueryRow(ctx, query, tenantID, subjectType, subjectID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval instance by subject")
	}
	if err := r.loadSteps(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// TransitionStep is a compare-and-set on status = 'pending'.
func (r *txRepo) TransitionStep(
	ctx context.Context,
	stepID string,
	status repository.StepStatus,
	actedBy string,
	comment *string,
	isProxy bool,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE approval_steps
		SET status      = $2::approval_step_status,
		    acted_by    = $3,
		    actioned_at = $4,
		    comment     = $5,
		    is_proxy    = $6
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id`

	var returnedID string
	err := r.tx.QueryRow(ctx, query, stepID, status, actedBy, at, comment, isProxy).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval step")
	}
	return true, nil
}

func (r *txRepo) UpdateInstanceStatus(ctx context.Context, id string, status repository.InstanceStatus) error {
	query := `
		UPDATE approval_instances
		SET status     = $2::approval_instance_status,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id`

	var returnedID string
	err := r.tx.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("approval_instance", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval instance")
	}
	return nil
}

func (r *txRepo) ListInstancesForApprover(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances i
		WHERE i.tenant_id = $1
		  AND i.status = 'pending'
		  AND EXISTS (
		      SELECT 1 FROM approval_steps s
		      WHERE s.instance_id = i.id
		        AND s.status = 'pending'
		        AND s.approver_id = $2)
		ORDER BY i.created_at ASC`

	return r.listInstances(ctx, query, tenantID, userID)
}

func (r *txRepo) ListInstancesAwaitingDirector(ctx context.Context, tenantID, roUserID string) ([]*repository.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances i
		JOIN approval_steps ro ON ro.instance_id = i.id AND ro.step_name = 'RO'
		JOIN approval_steps d  ON d.instance_id = i.id AND d.step_name = 'Director'
		WHERE i.tenant_id = $1
		  AND i.status = 'pending'
		  AND ro.approver_id = $2
		  AND ro.status = 'approved'
		  AND d.status = 'pending'
		ORDER BY i.created_at ASC`

	return r.listInstances(ctx, query, tenantID, roUserID)
}

func (r *txRepo) listInstances(ctx context.Context, query string, args ...any) ([]*repository.ApprovalInstance, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval instances")
	}

	var instances []*repository.ApprovalInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval instance")
		}
		instances = append(instances, inst)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval instances")
	}

	// steps are loaded after the cursor is closed; a pgx connection runs one
	// query at a time
	for _, inst := range instances {
		if err := r.loadSteps(ctx, inst); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func (r *txRepo) loadSteps(ctx context.Context, inst *repository.ApprovalInstance) error {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE instance_id = $1
		ORDER BY sequence ASC`

	rows, err := r.tx.Query(ctx, query, inst.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	inst.Steps = inst.Steps[:0]
	for rows.Next() {
		s := &repository.ApprovalStep{}
		err := rows.Scan(
			&s.ID,
			&s.InstanceID,
			&s.StepName,
			&s.Sequence,
			&s.ApproverID,
			&s.Status,
			&s.ActedBy,
			&s.ActionedAt,
			&s.Comment,
			&s.IsProxy,
			&s.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		inst.Steps = append(inst.Steps, s)
	}
	return rows.Err()
}

func scanInstance(row rowScanner) (*repository.ApprovalInstance, error) {
	inst := &repository.ApprovalInstance{}
	err := row.Scan(
		&inst.ID,
		&inst.TenantID,
		&inst.SubjectType,
		&inst.SubjectID,
		&inst.Status,
		&inst.CreatedBy,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}
