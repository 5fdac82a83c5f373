package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
)

// JobRepository is the persistence gateway for intake jobs. Every mutation is
// a single UPDATE or INSERT statement.
type JobRepository interface {
	CreateJob(ctx context.Context, in entity.NewJob) (*entity.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	// UpdateJob writes non-status fields; status changes go through Transition.
	UpdateJob(ctx context.Context, id uuid.UUID, patch entity.JobPatch) error
	// Transition moves a job from -> to only if it is still in from and not cancelled.
	Transition(ctx context.Context, id uuid.UUID, from, to constants.JobStatus, patch entity.JobPatch) error
	Claim(ctx context.Context, id uuid.UUID, workerID string) error
	LinkJobToBuilding(ctx context.Context, id, buildingID uuid.UUID, unitID *uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	ListQueued(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListClaimed(ctx context.Context, workerID string) ([]uuid.UUID, error)
	ListJobs(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error)
	FailStale(ctx context.Context, olderThan time.Duration, message string) (int64, error)
}

type jobRepo struct {
	db  *DB
	d   *entsql.DialectBuilder
	log *slog.Logger
	now func() time.Time
}

func NewJobRepository(db *DB, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepo{
		db:  db,
		d:   entsql.Dialect(db.Dialect),
		log: logger,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *jobRepo) CreateJob(ctx context.Context, in entity.NewJob) (*entity.Job, error) {
	if in.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrInvalidInput)
	}
	if in.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrInvalidInput)
	}
	if in.UnitID != nil && in.BuildingID == nil {
		return nil, fmt.Errorf("%w: unit without building", common.ErrInvalidInput)
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := r.now()

	ins := r.d.Insert(jobsTable).
		Set(colID, id).
		Set(colFilename, in.Filename).
		Set(colMimeType, in.MimeType).
		Set(colSizeBytes, in.SizeBytes).
		Set(colStatus, string(constants.JobStatusQueued)).
		Set(colBuildingID, nullUUID(in.BuildingID)).
		Set(colUnitID, nullUUID(in.UnitID)).
		Set(colCreatedAt, now).
		Set(colUpdatedAt, now)
	if _, err := r.exec(ctx, ins); err != nil {
		r.log.Error("repo.job.create.fail", "job_id", id, "err", err)
		return nil, common.StorageError("create job", err)
	}
	r.log.Info("repo.job.create", "job_id", id, "filename", in.Filename, "size", in.SizeBytes)

	return &entity.Job{
		ID:         id,
		Filename:   in.Filename,
		MimeType:   in.MimeType,
		SizeBytes:  in.SizeBytes,
		Status:     constants.JobStatusQueued,
		BuildingID: in.BuildingID,
		UnitID:     in.UnitID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *jobRepo) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := r.d.Select(jobColumns...).
		From(r.d.Table(jobsTable)).
		Where(entsql.EQ(colID, id)).
		Limit(1)
	jobs, err := r.queryJobs(ctx, q)
	if err != nil {
		return nil, common.StorageError("get job", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *jobRepo) UpdateJob(ctx context.Context, id uuid.UUID, patch entity.JobPatch) error {
	if patch.Status != nil {
		return fmt.Errorf("%w: status changes must use Transition", common.ErrInvalidInput)
	}
	upd := r.d.Update(jobsTable).Set(colUpdatedAt, r.now())
	applyPatch(upd, patch)
	upd.Where(entsql.EQ(colID, id))

	n, err := r.exec(ctx, upd)
	if err != nil {
		r.log.Error("repo.job.update.fail", "job_id", id, "err", err)
		return common.StorageError("update job", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *jobRepo) Transition(ctx context.Context, id uuid.UUID, from, to constants.JobStatus, patch entity.JobPatch) error {
	if !constants.CanTransition(from, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", common.ErrInvalidInput, from, to)
	}
	patch.Status = nil
	upd := r.d.Update(jobsTable).
		Set(colStatus, string(to)).
		Set(colUpdatedAt, r.now())
	applyPatch(upd, patch)
	upd.Where(entsql.And(
		entsql.EQ(colID, id),
		entsql.EQ(colStatus, string(from)),
		entsql.IsNull(colCancelledAt),
	))

	n, err := r.exec(ctx, upd)
	if err != nil {
		r.log.Error("repo.job.transition.fail", "job_id", id, "from", from, "to", to, "err", err)
		return common.StorageError("transition job", err)
	}
	if n == 0 {
		return r.explainMiss(ctx, id, from)
	}
	r.log.Debug("repo.job.transition", "job_id", id, "from", from, "to", to)
	return nil
}

func (r *jobRepo) Claim(ctx context.Context, id uuid.UUID, workerID string) error {
	now := r.now()
	upd := r.d.Update(jobsTable).
		Set(colStatus, string(constants.JobStatusOCR)).
		Set(colClaimedBy, workerID).
		Set(colClaimedAt, now).
		Set(colUpdatedAt, now).
		Where(entsql.And(
			entsql.EQ(colID, id),
			entsql.EQ(colStatus, string(constants.JobStatusQueued)),
			entsql.IsNull(colCancelledAt),
		))

	n, err := r.exec(ctx, upd)
	if err != nil {
		r.log.Error("repo.job.claim.fail", "job_id", id, "worker", workerID, "err", err)
		return common.StorageError("claim job", err)
	}
	if n == 0 {
		return r.explainMiss(ctx, id, constants.JobStatusQueued)
	}
	r.log.Info("repo.job.claim", "job_id", id, "worker", workerID)
	return nil
}

func (r *jobRepo) LinkJobToBuilding(ctx context.Context, id, buildingID uuid.UUID, unitID *uuid.UUID) error {
	if buildingID == uuid.Nil {
		return fmt.Errorf("%w: building id is required", common.ErrInvalidInput)
	}
	upd := r.d.Update(jobsTable).
		Set(colBuildingID, buildingID).
		Set(colUpdatedAt, r.now())
	if unitID != nil {
		upd.Set(colUnitID, *unitID)
	} else {
		upd.SetNull(colUnitID)
	}
	upd.Where(entsql.EQ(colID, id))

	n, err := r.exec(ctx, upd)
	if err != nil {
		return common.StorageError("link job", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	r.log.Info("repo.job.link", "job_id", id, "building_id", buildingID, "unit_id", unitID)
	return nil
}

func (r *jobRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	now := r.now()
	upd := r.d.Update(jobsTable).
		Set(colCancelledAt, now).
		Set(colUpdatedAt, now).
		Where(entsql.And(
			entsql.EQ(colID, id),
			entsql.IsNull(colCancelledAt),
			entsql.NotIn(colStatus, string(constants.JobStatusReady), string(constants.JobStatusFailed)),
		))

	n, err := r.exec(ctx, upd)
	if err != nil {
		return common.StorageError("cancel job", err)
	}
	if n == 1 {
		r.log.Info("repo.job.cancel", "job_id", id)
		return nil
	}

	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.IsCancelled() {
		return nil
	}
	return fmt.Errorf("%w: job %s is already %s", common.ErrInvalidInput, id, job.Status)
}

func (r *jobRepo) ListQueued(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := r.d.Select(colID).
		From(r.d.Table(jobsTable)).
		Where(entsql.And(
			entsql.EQ(colStatus, string(constants.JobStatusQueued)),
			entsql.IsNull(colCancelledAt),
		)).
		OrderBy(colCreatedAt)
	if limit > 0 {
		q.Limit(limit)
	}
	ids, err := r.queryIDs(ctx, q)
	if err != nil {
		return nil, common.StorageError("list queued", err)
	}
	return ids, nil
}

func (r *jobRepo) ListClaimed(ctx context.Context, workerID string) ([]uuid.UUID, error) {
	q := r.d.Select(colID).
		From(r.d.Table(jobsTable)).
		Where(entsql.And(
			entsql.EQ(colClaimedBy, workerID),
			entsql.In(colStatus, statusArgs(constants.ActiveStatuses)...),
			entsql.IsNull(colCancelledAt),
		)).
		OrderBy(colCreatedAt)
	ids, err := r.queryIDs(ctx, q)
	if err != nil {
		return nil, common.StorageError("list claimed", err)
	}
	return ids, nil
}

func (r *jobRepo) ListJobs(ctx context.Context, filter entity.JobFilter) ([]*entity.Job, error) {
	q := r.d.Select(jobColumns...).From(r.d.Table(jobsTable))
	var preds []*entsql.Predicate
	if len(filter.Statuses) > 0 {
		preds = append(preds, entsql.In(colStatus, statusArgs(filter.Statuses)...))
	}
	if filter.BuildingID != nil {
		preds = append(preds, entsql.EQ(colBuildingID, *filter.BuildingID))
	}
	if filter.Since != nil {
		preds = append(preds, entsql.GTE(colCreatedAt, filter.Since.UTC()))
	}
	if len(preds) > 0 {
		q.Where(entsql.And(preds...))
	}
	q.OrderBy(entsql.Desc(colCreatedAt))
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	jobs, err := r.queryJobs(ctx, q)
	if err != nil {
		return nil, common.StorageError("list jobs", err)
	}
	return jobs, nil
}

func (r *jobRepo) FailStale(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	now := r.now()
	cutoff := now.Add(-olderThan)
	upd := r.d.Update(jobsTable).
		Set(colStatus, string(constants.JobStatusFailed)).
		Set(colErrorCode, string(constants.ErrorCodeUnknown)).
		Set(colErrorMessage, message).
		Set(colUpdatedAt, now).
		Where(entsql.And(
			entsql.In(colStatus, statusArgs(constants.ActiveStatuses)...),
			entsql.LT(colUpdatedAt, cutoff),
			entsql.IsNull(colCancelledAt),
		))

	n, err := r.exec(ctx, upd)
	if err != nil {
		return 0, common.StorageError("fail stale jobs", err)
	}
	if n > 0 {
		r.log.Warn("repo.job.fail_stale", "count", n, "older_than", olderThan.String())
	}
	return n, nil
}

// explainMiss turns a zero-row conditional update into a precise error.
func (r *jobRepo) explainMiss(ctx context.Context, id uuid.UUID, expected constants.JobStatus) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.IsCancelled() {
		return fmt.Errorf("job %s: %w", id, common.ErrCancelled)
	}
	return fmt.Errorf("job %s is %s, expected %s: %w", id, job.Status, expected, common.ErrClaimConflict)
}

type querier interface {
	Query() (string, []any)
}

func (r *jobRepo) exec(ctx context.Context, q querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := r.db.Driver.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *jobRepo) queryIDs(ctx context.Context, q querier) ([]uuid.UUID, error) {
	query, args := q.Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *jobRepo) queryJobs(ctx context.Context, q querier) ([]*entity.Job, error) {
	query, args := q.Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		j, err := scanJob(&rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(rows *entsql.Rows) (*entity.Job, error) {
	var (
		j                  entity.Job
		status             string
		pageCount          sql.NullInt64
		promptTok          sql.NullInt64
		complTok           sql.NullInt64
		latency            sql.NullInt64
		confidence         sql.NullFloat64
		docType, ruleVer   sql.NullString
		engine, errCode    sql.NullString
		errMsg, text       sql.NullString
		summary, aiModel   sql.NullString
		claimedBy          sql.NullString
		buildingID, unitID uuid.NullUUID
		cancelledAt        sql.NullTime
		claimedAt          sql.NullTime
	)
	err := rows.Scan(
		&j.ID, &j.Filename, &j.MimeType, &j.SizeBytes, &pageCount, &status,
		&docType, &confidence, &ruleVer, &engine,
		&buildingID, &unitID, &errCode, &errMsg, &text,
		&summary, &aiModel, &promptTok, &complTok, &latency,
		&cancelledAt, &claimedBy, &claimedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := constants.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	j.Status = st
	j.PageCount = intPtr(pageCount)
	j.DocTypeGuess = strPtr(docType)
	if confidence.Valid {
		v := confidence.Float64
		j.DocTypeConfidence = &v
	}
	j.RuleSetVersion = strPtr(ruleVer)
	j.OCREngine = strPtr(engine)
	j.BuildingID = uuidPtr(buildingID)
	j.UnitID = uuidPtr(unitID)
	if errCode.Valid {
		c := constants.ErrorCode(errCode.String)
		j.ErrorCode = &c
	}
	j.ErrorMessage = strPtr(errMsg)
	j.ExtractedText = strPtr(text)
	if summary.Valid && summary.String != "" {
		j.Summary = []byte(summary.String)
	}
	j.AIModel = strPtr(aiModel)
	j.AIPromptTokens = intPtr(promptTok)
	j.AICompletionTokens = intPtr(complTok)
	if latency.Valid {
		v := latency.Int64
		j.AILatencyMS = &v
	}
	j.CancelledAt = timePtr(cancelledAt)
	j.ClaimedBy = strPtr(claimedBy)
	j.ClaimedAt = timePtr(claimedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func applyPatch(u *entsql.UpdateBuilder, p entity.JobPatch) {
	if p.PageCount != nil {
		u.Set(colPageCount, *p.PageCount)
	}
	if p.DocTypeGuess != nil {
		u.Set(colDocTypeGuess, *p.DocTypeGuess)
	}
	if p.DocTypeConfidence != nil {
		u.Set(colDocTypeConfidence, *p.DocTypeConfidence)
	}
	if p.RuleSetVersion != nil {
		u.Set(colRuleSetVersion, *p.RuleSetVersion)
	}
	if p.OCREngine != nil {
		u.Set(colOCREngine, *p.OCREngine)
	}
	if p.ErrorCode != nil {
		u.Set(colErrorCode, string(*p.ErrorCode))
	}
	if p.ErrorMessage != nil {
		u.Set(colErrorMessage, *p.ErrorMessage)
	}
	if p.ExtractedText != nil {
		u.Set(colExtractedText, *p.ExtractedText)
	}
	if p.Summary != nil {
		u.Set(colSummary, string(p.Summary))
	}
	if p.AIModel != nil {
		u.Set(colAIModel, *p.AIModel)
	}
	if p.AIPromptTokens != nil {
		u.Set(colAIPromptTokens, *p.AIPromptTokens)
	}
	if p.AICompletionTokens != nil {
		u.Set(colAICompletionTokens, *p.AICompletionTokens)
	}
	if p.AILatencyMS != nil {
		u.Set(colAILatencyMS, *p.AILatencyMS)
	}
}

func statusArgs(sts []constants.JobStatus) []any {
	args := make([]any, len(sts))
	for i, s := range sts {
		args[i] = string(s)
	}
	return args
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
