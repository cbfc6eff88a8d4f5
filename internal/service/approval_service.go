package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// ProxyCommentPrefix tags the comment of a Director step approved by the RO.
const ProxyCommentPrefix = "[proxy approval by RO] "

// Audit actions.
const (
	AuditCreated       = "created"
	AuditApproved      = "approved"
	AuditRejected      = "rejected"
	AuditSkipped       = "skipped"
	AuditProxyApproved = "proxy_approved"
)

// ApprovalService runs the two-step RO then Director approval of signed
// actuals.
type ApprovalService struct {
	base
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(store repository.Store, log *logger.Logger, opts ...Option) *ApprovalService {
	return &ApprovalService{base: newBase(store, log, "approvals", opts)}
}

// DeriveInstanceStatus computes an instance's status from its steps: rejected
// if any step is rejected, approved once every non-skipped step is approved.
func DeriveInstanceStatus(steps []*repository.ApprovalStep) repository.InstanceStatus {
	done := true
	for _, st := range steps {
		switch st.Status {
		case repository.StepRejected:
			return repository.InstanceRejected
		case repository.StepApproved, repository.StepSkipped:
		case repository.StepPending:
			done = false
		default:
			panic(fmt.Sprintf("service: unhandled step status %q", st.Status))
		}
	}
	if done {
		return repository.InstanceApproved
	}
	return repository.InstancePending
}

// nextPending returns the pending step with the lowest sequence, or nil.
func nextPending(inst *repository.ApprovalInstance) *repository.ApprovalStep {
	var next *repository.ApprovalStep
	for _, st := range inst.Steps {
		if st.Status.IsTerminal() {
			continue
		}
		if next == nil || st.Sequence < next.Sequence {
			next = st
		}
	}
	return next
}

// ── Creation ──────────────────────────────────────────────────────────────────

// EnsureApprovalInstance returns the approval instance of an actual line,
// creating it with its RO and Director steps on first call. It runs inside
// the caller's transaction so the sign and the instance commit together.
// created is false when the instance already existed.
func (s *ApprovalService) EnsureApprovalInstance(
	ctx context.Context,
	tx repository.Tx,
	tenantID, subjectID, createdBy string,
) (inst *repository.ApprovalInstance, created bool, err error) {
	existing, err := tx.GetInstanceBySubject(ctx, tenantID, repository.SubjectActuals, subjectID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	line, err := tx.GetActual(ctx, tenantID, subjectID)
	if err != nil {
		return nil, false, err
	}
	approvers, err := ResolveApprovers(ctx, tx, tenantID, line.ResourceID)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	roStep := &repository.ApprovalStep{
		StepName:   repository.StepRO,
		Sequence:   1,
		ApproverID: approvers.ROUserID,
		Status:     repository.StepPending,
	}
	// Skip rule: nobody approves their own work twice.
	if approvers.ROUserID == approvers.DirectorUserID {
		roStep.Status = repository.StepSkipped
		roStep.ActionedAt = &now
	}
	dirStep := &repository.ApprovalStep{
		StepName:   repository.StepDirector,
		Sequence:   2,
		ApproverID: approvers.DirectorUserID,
		Status:     repository.StepPending,
	}

	inst = &repository.ApprovalInstance{
		TenantID:    tenantID,
		SubjectType: repository.SubjectActuals,
		SubjectID:   subjectID,
		Status:      repository.InstancePending,
		CreatedBy:   createdBy,
		Steps:       []*repository.ApprovalStep{roStep, dirStep},
	}
	ok, err := tx.CreateInstance(ctx, inst)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		// lost the unique-constraint race; the winner's instance stands
		existing, err := tx.GetInstanceBySubject(ctx, tenantID, repository.SubjectActuals, subjectID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, errors.New(errors.ErrCodeConflict, "approval instance creation conflicted")
		}
		return existing, false, nil
	}

	if err := s.appendAudit(ctx, tx, inst, nil, AuditCreated, createdBy, nil, map[string]any{
		"ro_user_id":       approvers.ROUserID,
		"director_user_id": approvers.DirectorUserID,
	}); err != nil {
		return nil, false, err
	}
	if roStep.Status == repository.StepSkipped {
		if err := s.appendAudit(ctx, tx, inst, &roStep.ID, AuditSkipped, createdBy, nil, map[string]any{
			"reason": "resource owner is also the director",
		}); err != nil {
			return nil, false, err
		}
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("instance_id", inst.ID).
		Str("subject_id", subjectID).
		Str("ro_step", string(roStep.Status)).
		Msg("Approval instance created")

	return inst, true, nil
}

// ── Transitions ───────────────────────────────────────────────────────────────

// ApproveStep records the approver's approval of a step.
func (s *ApprovalService) ApproveStep(ctx context.Context, u User, instanceID, stepID string, comment *string) (*repository.ApprovalInstance, error) {
	return s.act(ctx, u, instanceID, stepID, repository.StepApproved, comment)
}

// RejectStep records a rejection. The whole instance is rejected at once;
// other pending steps stay pending.
func (s *ApprovalService) RejectStep(ctx context.Context, u User, instanceID, stepID string, comment *string) (*repository.ApprovalInstance, error) {
	return s.act(ctx, u, instanceID, stepID, repository.StepRejected, comment)
}

func (s *ApprovalService) act(
	ctx context.Context,
	u User,
	instanceID, stepID string,
	to repository.StepStatus,
	comment *string,
) (*repository.ApprovalInstance, error) {
	var (
		out *repository.ApprovalInstance
		ob  outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ob.reset()

		inst, err := tx.GetInstance(ctx, u.TenantID, instanceID)
		if err != nil {
			return err
		}
		step := inst.Step(stepID)
		if step == nil {
			return errors.NotFound("approval_step", stepID)
		}
		if err := assertCanAct(u, inst, step); err != nil {
			return err
		}

		if err := s.transition(ctx, tx, inst, step, to, u.ID, comment, false); err != nil {
			return err
		}

		action := AuditApproved
		if to == repository.StepRejected {
			action = AuditRejected
		}
		if err := s.appendAudit(ctx, tx, inst, &step.ID, action, u.ID, comment, nil); err != nil {
			return err
		}

		s.queueOutcome(&ob, inst, u.ID)
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, &ob)

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("instance_id", instanceID).
		Str("step_id", stepID).
		Str("step_status", string(to)).
		Str("instance_status", string(out.Status)).
		Str("acted_by", u.ID).
		Msg("Approval step actioned")
	return out, nil
}

// assertCanAct checks that u may act on step now. Checks run in the order the
// errors are documented to callers.
func assertCanAct(u User, inst *repository.ApprovalInstance, step *repository.ApprovalStep) error {
	if !CanApproveStep(u, step) {
		return errors.New(errors.ErrCodeNotApprover, "user is not the approver of this step").
			WithExtra("step_id", step.ID)
	}
	if step.Status != repository.StepPending {
		return errors.Newf(errors.ErrCodeStepNotPending, "step is %s", step.Status).
			WithExtra("step_id", step.ID).
			WithExtra("status", string(step.Status))
	}
	if next := nextPending(inst); next != nil && next.ID != step.ID {
		return errors.New(errors.ErrCodeStepOutOfOrder, "an earlier step is still pending").
			WithExtra("step_id", step.ID).
			WithExtra("pending_step_id", next.ID)
	}
	if inst.Status != repository.InstancePending {
		return errors.Newf(errors.ErrCodeInvalidTransition, "approval instance is %s", inst.Status).
			WithExtra("instance_id", inst.ID)
	}
	return nil
}

// ProxyApproveDirectorStep lets the RO who already approved their own step
// approve the pending Director step. explanation is recorded in the step
// comment.
func (s *ApprovalService) ProxyApproveDirectorStep(ctx context.Context, u User, instanceID, stepID, explanation string) (*repository.ApprovalInstance, error) {
	if isBlank(explanation) {
		return nil, errors.New(errors.ErrCodeExplanationRequired, "an explanation is required for proxy approval")
	}

	var (
		out *repository.ApprovalInstance
		ob  outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ob.reset()

		inst, err := tx.GetInstance(ctx, u.TenantID, instanceID)
		if err != nil {
			return err
		}
		step := inst.Step(stepID)
		if step == nil {
			return errors.NotFound("approval_step", stepID)
		}
		if step.StepName != repository.StepDirector {
			return errors.New(errors.ErrCodeInvalidTransition, "only the Director step can be proxy approved").
				WithExtra("step_id", stepID)
		}
		ro := inst.StepByName(repository.StepRO)
		if ro == nil || u.Role != RoleRO || ro.ApproverID != u.ID {
			return errors.New(errors.ErrCodeNotApprover, "user is not the resource owner of this approval").
				WithExtra("step_id", stepID)
		}
		switch ro.Status {
		case repository.StepApproved:
		case repository.StepPending:
			return errors.New(errors.ErrCodeStepOutOfOrder, "the RO step must be approved first").
				WithExtra("pending_step_id", ro.ID)
		default:
			return errors.Newf(errors.ErrCodeInvalidTransition, "RO step is %s", ro.Status).
				WithExtra("step_id", ro.ID)
		}
		if step.Status != repository.StepPending {
			return errors.Newf(errors.ErrCodeStepNotPending, "step is %s", step.Status).
				WithExtra("step_id", step.ID).
				WithExtra("status", string(step.Status))
		}
		if !CanProxyApprove(u, ro, step) || inst.Status != repository.InstancePending {
			return errors.Newf(errors.ErrCodeInvalidTransition, "approval instance is %s", inst.Status).
				WithExtra("instance_id", inst.ID)
		}

		comment := ProxyCommentPrefix + explanation
		if err := s.transition(ctx, tx, inst, step, repository.StepApproved, u.ID, &comment, true); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, inst, &step.ID, AuditProxyApproved, u.ID, &comment, map[string]any{
			"on_behalf_of": step.ApproverID,
		}); err != nil {
			return err
		}

		s.queueOutcome(&ob, inst, u.ID)
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, &ob)

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("instance_id", instanceID).
		Str("step_id", stepID).
		Str("acted_by", u.ID).
		Msg("Director step proxy approved by RO")
	return out, nil
}

// transition applies a compare-and-set on the step and refreshes the derived
// instance status. A step that stopped being pending since it was read
// reports STEP_NOT_PENDING.
func (s *ApprovalService) transition(
	ctx context.Context,
	tx repository.Tx,
	inst *repository.ApprovalInstance,
	step *repository.ApprovalStep,
	to repository.StepStatus,
	actedBy string,
	comment *string,
	isProxy bool,
) error {
	now := s.now()
	ok, err := tx.TransitionStep(ctx, step.ID, to, actedBy, comment, isProxy, now)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.ErrCodeStepNotPending, "step was actioned concurrently").
			WithExtra("step_id", step.ID)
	}

	step.Status = to
	step.ActedBy = &actedBy
	step.ActionedAt = &now
	step.Comment = comment
	step.IsProxy = isProxy

	status := DeriveInstanceStatus(inst.Steps)
	if status != inst.Status {
		if err := tx.UpdateInstanceStatus(ctx, inst.ID, status); err != nil {
			return err
		}
		inst.Status = status
		inst.UpdatedAt = now
	}
	return nil
}

// queueOutcome records the event that follows a step action.
func (s *ApprovalService) queueOutcome(ob *outbox, inst *repository.ApprovalInstance, actorID string) {
	e := event{
		tenantID:  inst.TenantID,
		subjectID: inst.SubjectID,
		actorID:   actorID,
		payload:   map[string]any{"instance_id": inst.ID},
	}
	switch inst.Status {
	case repository.InstanceApproved:
		e.eventType = EventApprovalApproved
		e.recipients = []string{inst.CreatedBy}
	case repository.InstanceRejected:
		e.eventType = EventApprovalRejected
		e.recipients = []string{inst.CreatedBy}
	case repository.InstancePending:
		next := nextPending(inst)
		if next == nil {
			return
		}
		e.eventType = EventApprovalRequired
		e.recipients = []string{next.ApproverID}
		e.payload["step_id"] = next.ID
		e.payload["step_name"] = string(next.StepName)
	}
	ob.add(e)
}

func (s *ApprovalService) appendAudit(
	ctx context.Context,
	tx repository.Tx,
	inst *repository.ApprovalInstance,
	stepID *string,
	action, performedBy string,
	comment *string,
	metadata map[string]any,
) error {
	entry := &repository.ApprovalAuditEntry{
		TenantID:    inst.TenantID,
		InstanceID:  inst.ID,
		StepID:      stepID,
		Action:      action,
		PerformedBy: performedBy,
		Comment:     comment,
		Metadata:    metadata,
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("instance_id", inst.ID).
			Str("action", action).
			Msg("Failed to append approval audit entry")
		return err
	}
	return nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// InboxItem is an instance waiting on the user.
type InboxItem struct {
	Instance *repository.ApprovalInstance
	// Step is the step the user can act on.
	Step *repository.ApprovalStep
	// ProxyAvailable is set when the user can proxy approve Step as the RO.
	ProxyAvailable bool
}

// Inbox splits the user's work: steps bound to them, and, for ROs, Director
// steps they may proxy approve.
type Inbox struct {
	Pending         []InboxItem
	ProxyApprovable []InboxItem
}

// ListInbox returns the instances waiting on u.
func (s *ApprovalService) ListInbox(ctx context.Context, u User) (*Inbox, error) {
	out := &Inbox{}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out.Pending, out.ProxyApprovable = nil, nil

		mine, err := tx.ListInstancesForApprover(ctx, u.TenantID, u.ID)
		if err != nil {
			return err
		}
		for _, inst := range mine {
			for _, st := range inst.Steps {
				if st.Status == repository.StepPending && st.ApproverID == u.ID {
					out.Pending = append(out.Pending, InboxItem{Instance: inst, Step: st})
					break
				}
			}
		}

		if u.Role != RoleRO {
			return nil
		}
		waiting, err := tx.ListInstancesAwaitingDirector(ctx, u.TenantID, u.ID)
		if err != nil {
			return err
		}
		for _, inst := range waiting {
			ro := inst.StepByName(repository.StepRO)
			dir := inst.StepByName(repository.StepDirector)
			if !CanProxyApprove(u, ro, dir) {
				continue
			}
			out.ProxyApprovable = append(out.ProxyApprovable, InboxItem{
				Instance:       inst,
				Step:           dir,
				ProxyAvailable: true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetApprovalInstance returns the instance of an actual line.
func (s *ApprovalService) GetApprovalInstance(ctx context.Context, tenantID, subjectID string) (*repository.ApprovalInstance, error) {
	var out *repository.ApprovalInstance
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		inst, err := tx.GetInstanceBySubject(ctx, tenantID, repository.SubjectActuals, subjectID)
		if err != nil {
			return err
		}
		if inst == nil {
			return errors.NotFound("approval_instance", subjectID).WithExtra("subject_id", subjectID)
		}
		out = inst
		return nil
	})
	return out, err
}

// GetApprovalByID returns one instance with its steps.
func (s *ApprovalService) GetApprovalByID(ctx context.Context, tenantID, instanceID string) (*repository.ApprovalInstance, error) {
	var out *repository.ApprovalInstance
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetInstance(ctx, tenantID, instanceID)
		return err
	})
	return out, err
}

// GetApprovalHistory returns the audit trail of an instance, oldest first.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, tenantID, instanceID string) ([]*repository.ApprovalAuditEntry, error) {
	var out []*repository.ApprovalAuditEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetInstance(ctx, tenantID, instanceID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAudit(ctx, tenantID, instanceID)
		return err
	})
	return out, err
}
