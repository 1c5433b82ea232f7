// Package services – SyncService
//
// SyncService is the synchronization engine. For one field it resolves the
// date window from the requested mode and the stored watermark, fetches the
// field operations, persists raw payloads, normalizes them, persists the
// normalized rows, and finally advances the field's SyncState. The steps run
// strictly in that order, so a failure never moves the watermark past data
// that was not stored.
//
// A farmer sweep walks every organization (or a subset) and every field of
// each organization. Failures are isolated per field and per organization;
// only authorization failures abort the whole sweep.
//
// Incremental requests for a field that was never synced are reported as a
// cold start: nothing is fetched and no SyncState is written, so the caller
// has to re-drive the field in full_history mode.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/jdoc"
	"github.com/agricapture/fieldsync/internal/normalize"
	"github.com/agricapture/fieldsync/internal/observability"
	"github.com/agricapture/fieldsync/internal/repo"
)

// DefaultLookbackYears is the full_history window when none is configured.
const DefaultLookbackYears = 5

// FieldStatus is the outcome of one field sync.
type FieldStatus string

const (
	StatusSynced    FieldStatus = "synced"
	StatusColdStart FieldStatus = "cold_start"
	StatusFailed    FieldStatus = "failed"
)

// SyncRepo is the persistence contract of SyncService.
type SyncRepo interface {
	HierarchyRepo
	GetSyncState(ctx context.Context, db *gorm.DB, farmerID, orgID, fieldID string) (*domain.SyncState, error)
	UpsertSyncState(ctx context.Context, db *gorm.DB, s *domain.SyncState) error
	PersistOperations(ctx context.Context, db *gorm.DB, raws []domain.RawOperation, norms []domain.NormalizedOperation) error
}

// TokenChecker reports why a farmer has no usable token.
type TokenChecker interface {
	TokenStatus(ctx context.Context, userID string) (string, error)
}

// RawArchiver stores a copy of fetched payloads. Failures are logged only.
type RawArchiver interface {
	Archive(ctx context.Context, dataType string, payload map[string]any) (string, error)
}

// FieldSyncRequest selects one field and how to sync it. Names are looked up
// locally when left empty.
type FieldSyncRequest struct {
	FarmerID      string
	OrgID         string
	OrgName       string
	FieldID       string
	FieldName     string
	Mode          domain.SyncMode
	LookbackYears int
	EndDate       *time.Time
}

// Window is a resolved sync window. ColdStart means an incremental request
// had no prior sync to continue from; Start and End are then unset.
type Window struct {
	Mode      domain.SyncMode
	Start     time.Time
	End       time.Time
	ColdStart bool
}

// FieldResult reports one field sync.
type FieldResult struct {
	FarmerID        string          `json:"farmer_id"`
	OrgID           string          `json:"org_id"`
	FieldID         string          `json:"field_id"`
	FieldName       string          `json:"field_name,omitempty"`
	Mode            domain.SyncMode `json:"mode"`
	Status          FieldStatus     `json:"status"`
	FallbackMode    domain.SyncMode `json:"fallback_mode,omitempty"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	SyncedAt        *time.Time      `json:"synced_at,omitempty"`
	RawCount        int             `json:"raw_count"`
	NormalizedCount int             `json:"normalized_count"`
	FailedCount     int             `json:"failed_count"`
	Error           string          `json:"error,omitempty"`

	Operations []domain.NormalizedOperation `json:"-"`
}

// SyncService drives field and farmer synchronization.
type SyncService struct {
	DB     *gorm.DB
	Repo   SyncRepo
	Remote RemoteClient

	// Tokens, when set, is consulted before a sweep so that a missing or
	// unrefreshable credential is reported with its reason.
	Tokens TokenChecker
	// Archive, when set, receives every fetched operations batch.
	Archive RawArchiver

	LookbackYears  int
	OrgConcurrency int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	fieldLocks keyedMutex
}

// NewSyncService builds a SyncService with default tuning.
func NewSyncService(db *gorm.DB, r SyncRepo, remote RemoteClient) *SyncService {
	return &SyncService{
		DB:             db,
		Repo:           r,
		Remote:         remote,
		LookbackYears:  DefaultLookbackYears,
		OrgConcurrency: 1,
	}
}

func (s *SyncService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ResolveWindow computes the date window of a field sync.
//
// full_history spans lookback years back from now to the end override (or
// now). incremental continues from the stored last_sync_end_date; a field
// without a recorded sync yields a ColdStart window.
func (s *SyncService) ResolveWindow(ctx context.Context, req FieldSyncRequest) (Window, error) {
	if !req.Mode.Valid() {
		return Window{}, ErrInvalidMode
	}
	now := s.now()
	end := now
	if req.EndDate != nil {
		end = req.EndDate.UTC()
	}

	if req.Mode == domain.ModeFullHistory {
		years := req.LookbackYears
		if years <= 0 {
			years = s.LookbackYears
		}
		if years <= 0 {
			years = DefaultLookbackYears
		}
		return Window{
			Mode:  domain.ModeFullHistory,
			Start: now.Add(-time.Duration(years) * 365 * 24 * time.Hour),
			End:   end,
		}, nil
	}

	st, err := s.Repo.GetSyncState(ctx, s.DB, req.FarmerID, req.OrgID, req.FieldID)
	if errors.Is(err, repo.ErrNotFound) {
		return Window{Mode: domain.ModeIncremental, ColdStart: true}, nil
	}
	if err != nil {
		return Window{}, persistErr("load sync state", err)
	}
	if st.LastSyncedAt == nil {
		return Window{Mode: domain.ModeIncremental, ColdStart: true}, nil
	}
	start := *st.LastSyncedAt
	if st.LastSyncEndDate != nil {
		start = *st.LastSyncEndDate
	}
	return Window{Mode: domain.ModeIncremental, Start: start.UTC(), End: end}, nil
}

func fieldLockKey(farmerID, orgID, fieldID string) string {
	return farmerID + "\x00" + orgID + "\x00" + fieldID
}

// SyncField synchronizes a single field. Syncs of the same field are
// serialized. A non-nil error is returned for any failure that left the
// watermark untouched; the result is populated in every case.
func (s *SyncService) SyncField(ctx context.Context, req FieldSyncRequest) (*FieldResult, error) {
	tr := otel.Tracer("services/SyncService")
	ctx, span := tr.Start(ctx, "SyncField", trace.WithAttributes(
		attribute.String("farmer.id", req.FarmerID),
		attribute.String("org.id", req.OrgID),
		attribute.String("field.id", req.FieldID),
		attribute.String("sync.mode", string(req.Mode)),
	))
	defer span.End()

	res := &FieldResult{
		FarmerID:  req.FarmerID,
		OrgID:     req.OrgID,
		FieldID:   req.FieldID,
		FieldName: req.FieldName,
		Mode:      req.Mode,
	}
	fail := func(err error) (*FieldResult, error) {
		res.Status = StatusFailed
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "field sync failed")
		observability.FieldSyncs.WithLabelValues(string(req.Mode), string(StatusFailed)).Inc()
		log.Warn().Err(err).
			Str("farmer_id", req.FarmerID).Str("org_id", req.OrgID).Str("field_id", req.FieldID).
			Msg("field sync failed")
		return res, err
	}

	if !req.Mode.Valid() {
		res.Status = StatusFailed
		res.Error = ErrInvalidMode.Error()
		return res, ErrInvalidMode
	}

	unlock := s.fieldLocks.Lock(fieldLockKey(req.FarmerID, req.OrgID, req.FieldID))
	defer unlock()

	win, err := s.ResolveWindow(ctx, req)
	if err != nil {
		return fail(err)
	}
	if win.ColdStart {
		res.Status = StatusColdStart
		res.FallbackMode = domain.ModeFullHistory
		observability.FieldSyncs.WithLabelValues(string(req.Mode), string(StatusColdStart)).Inc()
		log.Info().
			Str("farmer_id", req.FarmerID).Str("org_id", req.OrgID).Str("field_id", req.FieldID).
			Msg("incremental sync without prior state, full_history required")
		return res, nil
	}
	res.StartDate, res.EndDate = &win.Start, &win.End

	s.resolveNames(ctx, &req)
	res.FieldName = req.FieldName

	// 1. fetch
	records, err := s.Remote.ListFieldOperations(ctx, req.FarmerID, req.OrgID, req.FieldID, &win.Start, &win.End)
	if err != nil {
		return fail(err)
	}
	s.archive(ctx, req, win, records)

	// 2. normalize; per-record failures are counted, never fatal
	now := s.now()
	batch := normalize.NormalizeBatch(records, normalize.Target{
		FieldID:   req.FieldID,
		FieldName: req.FieldName,
		OrgID:     req.OrgID,
		OrgName:   req.OrgName,
	}, req.FarmerID, now)
	for _, f := range batch.Failures {
		log.Warn().Err(f.Err).Int("record", f.Index).Str("operation_id", f.OperationID).
			Str("field_id", req.FieldID).Msg("operation skipped during normalization")
	}
	for i := range batch.Normalized {
		batch.Normalized[i].ID = uuid.NewString()
		batch.Normalized[i].CreatedAt = now
	}

	// 3. persist raw, then normalized, in one transaction
	if err := s.Repo.PersistOperations(ctx, s.DB, batch.Raw, batch.Normalized); err != nil {
		return fail(persistErr("persist operations", err))
	}

	// 4. advance the watermark
	st := &domain.SyncState{
		FarmerID:          req.FarmerID,
		OrgID:             req.OrgID,
		FieldID:           req.FieldID,
		FieldName:         req.FieldName,
		LastSyncedAt:      &now,
		LastSyncMode:      win.Mode,
		LastSyncStartDate: &win.Start,
		LastSyncEndDate:   &win.End,
	}
	if err := s.Repo.UpsertSyncState(ctx, s.DB, st); err != nil {
		return fail(persistErr("save sync state", err))
	}

	res.Status = StatusSynced
	res.SyncedAt = &now
	res.RawCount = len(batch.Raw)
	res.NormalizedCount = len(batch.Normalized)
	res.FailedCount = len(batch.Failures)
	res.Operations = batch.Normalized

	observability.FieldSyncs.WithLabelValues(string(win.Mode), string(StatusSynced)).Inc()
	observability.Operations.WithLabelValues("raw").Add(float64(res.RawCount))
	observability.Operations.WithLabelValues("normalized").Add(float64(res.NormalizedCount))
	observability.Operations.WithLabelValues("failed").Add(float64(res.FailedCount))
	span.SetAttributes(
		attribute.Int("operations.raw", res.RawCount),
		attribute.Int("operations.normalized", res.NormalizedCount),
	)
	log.Info().
		Str("farmer_id", req.FarmerID).Str("org_id", req.OrgID).Str("field_id", req.FieldID).
		Str("mode", string(win.Mode)).Int("raw", res.RawCount).Int("normalized", res.NormalizedCount).
		Int("failed", res.FailedCount).Msg("field synced")
	return res, nil
}

// resolveNames fills missing field and organization names from the local
// store, falling back to the ids.
func (s *SyncService) resolveNames(ctx context.Context, req *FieldSyncRequest) {
	if req.FieldName == "" {
		if f, err := s.Repo.GetField(ctx, s.DB, req.FieldID); err == nil && f.Name != "" {
			req.FieldName = f.Name
		} else {
			req.FieldName = req.FieldID
		}
	}
	if req.OrgName == "" {
		if o, err := s.Repo.GetOrganization(ctx, s.DB, req.OrgID); err == nil && o.Name != "" {
			req.OrgName = o.Name
		} else {
			req.OrgName = req.OrgID
		}
	}
}

func (s *SyncService) archive(ctx context.Context, req FieldSyncRequest, win Window, records any) {
	if s.Archive == nil {
		return
	}
	payload := map[string]any{
		"farmer_id":  req.FarmerID,
		"org_id":     req.OrgID,
		"field_id":   req.FieldID,
		"mode":       win.Mode,
		"start_date": win.Start,
		"end_date":   win.End,
		"operations": records,
	}
	key, err := s.Archive.Archive(ctx, "field_operations", payload)
	if err != nil {
		log.Warn().Err(err).Str("field_id", req.FieldID).Msg("raw archive failed")
		return
	}
	log.Debug().Str("field_id", req.FieldID).Str("key", key).Msg("raw operations archived")
}

// SweepRequest selects the farmer and, optionally, a subset of organizations.
type SweepRequest struct {
	FarmerID      string
	OrgIDs        []string
	Mode          domain.SyncMode
	LookbackYears int
	EndDate       *time.Time
}

// OrgReport is the per-organization part of a sweep.
type OrgReport struct {
	OrgID   string         `json:"org_id"`
	OrgName string         `json:"org_name,omitempty"`
	Fields  []*FieldResult `json:"fields"`
	Error   string         `json:"error,omitempty"`
}

// SweepReport aggregates a farmer sweep.
type SweepReport struct {
	FarmerID             string          `json:"farmer_id"`
	Mode                 domain.SyncMode `json:"mode"`
	StartedAt            time.Time       `json:"started_at"`
	FinishedAt           time.Time       `json:"finished_at"`
	Organizations        int             `json:"organizations"`
	OrganizationsSkipped int             `json:"organizations_skipped"`
	Fields               int             `json:"fields"`
	FieldsSynced         int             `json:"fields_synced"`
	FieldsFailed         int             `json:"fields_failed"`
	ColdStarts           int             `json:"cold_starts"`
	RawOperations        int             `json:"raw_operations"`
	NormalizedOperations int             `json:"normalized_operations"`
	NormalizationFailed  int             `json:"normalization_failed"`
	Orgs                 []*OrgReport    `json:"orgs"`
}

func (r *SweepReport) add(o *OrgReport) {
	r.Organizations++
	if o.Error != "" {
		r.OrganizationsSkipped++
	}
	for _, f := range o.Fields {
		r.Fields++
		switch f.Status {
		case StatusSynced:
			r.FieldsSynced++
		case StatusColdStart:
			r.ColdStarts++
		case StatusFailed:
			r.FieldsFailed++
		}
		r.RawOperations += f.RawCount
		r.NormalizedOperations += f.NormalizedCount
		r.NormalizationFailed += f.FailedCount
	}
}

// ColdStartFields returns the fields a sweep reported as cold starts.
func (r *SweepReport) ColdStartFields() []*FieldResult {
	var out []*FieldResult
	for _, o := range r.Orgs {
		for _, f := range o.Fields {
			if f.Status == StatusColdStart {
				out = append(out, f)
			}
		}
	}
	return out
}

// isAbortError reports errors that make every further request pointless.
func isAbortError(err error) bool {
	var rerr *AuthRefreshError
	return jdoc.IsAuthError(err) || errors.As(err, &rerr)
}

// SyncFarmer sweeps all organizations and fields of a farmer. Organizations
// run with bounded concurrency; fields within one organization run in
// order. The returned error is non-nil only when the sweep was aborted, in
// which case the report covers the work done so far.
func (s *SyncService) SyncFarmer(ctx context.Context, req SweepRequest) (*SweepReport, error) {
	tr := otel.Tracer("services/SyncService")
	ctx, span := tr.Start(ctx, "SyncFarmer", trace.WithAttributes(
		attribute.String("farmer.id", req.FarmerID),
		attribute.String("sync.mode", string(req.Mode)),
	))
	defer span.End()

	report := &SweepReport{FarmerID: req.FarmerID, Mode: req.Mode, StartedAt: s.now()}
	finish := func(err error) (*SweepReport, error) {
		report.FinishedAt = s.now()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep aborted")
			log.Error().Err(err).Str("farmer_id", req.FarmerID).Msg("sweep aborted")
		}
		return report, err
	}

	if !req.Mode.Valid() {
		return finish(ErrInvalidMode)
	}
	if s.Tokens != nil {
		if _, err := s.Tokens.TokenStatus(ctx, req.FarmerID); err != nil {
			if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrNoRefreshToken) {
				err = fmt.Errorf("%w: %w", jdoc.ErrUnauthenticated, err)
			}
			return finish(err)
		}
	}

	orgs, err := s.Remote.ListOrganizations(ctx, req.FarmerID)
	if err != nil {
		return finish(err)
	}
	orgs = filterOrgs(orgs, req.OrgIDs)

	limit := s.OrgConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	reports := make([]*OrgReport, len(orgs))
	for i, org := range orgs {
		g.Go(func() error {
			or, err := s.syncOrg(gctx, req, org)
			reports[i] = or
			return err
		})
	}
	err = g.Wait()

	for _, or := range reports {
		if or != nil {
			report.Orgs = append(report.Orgs, or)
			report.add(or)
		}
	}
	if err == nil {
		log.Info().Str("farmer_id", req.FarmerID).Str("mode", string(req.Mode)).
			Int("organizations", report.Organizations).Int("fields", report.Fields).
			Int("failed", report.FieldsFailed).Int("cold_starts", report.ColdStarts).
			Int("normalized", report.NormalizedOperations).Msg("sweep finished")
	}
	return finish(err)
}

func filterOrgs(orgs []jdoc.Organization, only []string) []jdoc.Organization {
	if len(only) == 0 {
		return orgs
	}
	want := make(map[string]struct{}, len(only))
	for _, id := range only {
		want[id] = struct{}{}
	}
	out := orgs[:0:0]
	for _, o := range orgs {
		if _, ok := want[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

// syncOrg lists the fields of one organization and syncs them in order. It
// only returns an error for failures that abort the sweep.
func (s *SyncService) syncOrg(ctx context.Context, req SweepRequest, org jdoc.Organization) (*OrgReport, error) {
	or := &OrgReport{OrgID: org.ID, OrgName: org.Name}
	orgName := org.Name
	if orgName == "" {
		orgName = org.ID
	}

	fields, err := s.Remote.ListFields(ctx, req.FarmerID, org.ID, true)
	if err != nil {
		if isAbortError(err) {
			return or, err
		}
		or.Error = err.Error()
		log.Warn().Err(err).Str("farmer_id", req.FarmerID).Str("org_id", org.ID).Msg("field listing failed, organization skipped")
		return or, nil
	}

	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return or, err
		}
		if err := s.Repo.UpsertField(ctx, s.DB, FieldFromRemote(org.ID, f)); err != nil {
			log.Warn().Err(err).Str("org_id", org.ID).Str("field_id", f.ID).Msg("field not stored")
		}
		name := f.Name
		if name == "" {
			name = f.ID
		}
		res, err := s.SyncField(ctx, FieldSyncRequest{
			FarmerID:      req.FarmerID,
			OrgID:         org.ID,
			OrgName:       orgName,
			FieldID:       f.ID,
			FieldName:     name,
			Mode:          req.Mode,
			LookbackYears: req.LookbackYears,
			EndDate:       req.EndDate,
		})
		res.Operations = nil
		or.Fields = append(or.Fields, res)
		if err != nil && isAbortError(err) {
			return or, err
		}
	}
	return or, nil
}

// AutoSync runs an incremental sweep and re-drives every cold-start field
// in full_history mode, which is what a scheduler needs to bootstrap newly
// connected fields.
func (s *SyncService) AutoSync(ctx context.Context, farmerID string) (*SweepReport, error) {
	report, err := s.SyncFarmer(ctx, SweepRequest{FarmerID: farmerID, Mode: domain.ModeIncremental})
	if err != nil {
		return report, err
	}
	for _, f := range report.ColdStartFields() {
		res, err := s.SyncField(ctx, FieldSyncRequest{
			FarmerID:  f.FarmerID,
			OrgID:     f.OrgID,
			FieldID:   f.FieldID,
			FieldName: f.FieldName,
			Mode:      domain.ModeFullHistory,
		})
		if err != nil && isAbortError(err) {
			return report, err
		}
		report.ColdStarts--
		switch res.Status {
		case StatusSynced:
			report.FieldsSynced++
			report.RawOperations += res.RawCount
			report.NormalizedOperations += res.NormalizedCount
			report.NormalizationFailed += res.FailedCount
		case StatusFailed:
			report.FieldsFailed++
		}
		res.Operations = nil
		*f = *res
	}
	return report, nil
}
