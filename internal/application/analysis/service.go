// Package analysis runs crop photos through upload, remote inference and
// persistence, and queues them for later when the device is offline.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	appcapture "github.com/jbctechsolutions/cropcare/internal/application/capture"
	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	domainoffline "github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/security"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// DefaultListLimit caps how many analyses a list or refresh fetches.
const DefaultListLimit = 50

// Config locates uploads and spooled images.
type Config struct {
	Bucket    string
	SpoolDir  string
	ListLimit int
}

// Request is one photo to analyze.
type Request struct {
	Image    []byte
	CropType string
	Location *analysis.Location
}

// Validate rejects requests that cannot be analyzed before any network call.
func (r *Request) Validate() error {
	if len(r.Image) == 0 {
		return domainerrors.Validation("an image is required")
	}
	if strings.TrimSpace(r.CropType) == "" {
		return domainerrors.Validation("crop type is required")
	}
	if r.Location != nil {
		if err := r.Location.Validate(); err != nil {
			return domainerrors.NewError(domainerrors.CodeValidation, "invalid location", err)
		}
	}
	return nil
}

// queuedAnalysis is the payload of an analysis/create operation.
type queuedAnalysis struct {
	Analysis  *analysis.CropAnalysis `json:"analysis"`
	SpoolPath string                 `json:"spool_path,omitempty"`
	ImagePath string                 `json:"image_path,omitempty"`
	Language  string                 `json:"language"`
}

// relabel is the payload of an analysis/update operation.
type relabel struct {
	ID       string `json:"id"`
	CropType string `json:"crop_type"`
}

// removal is the payload of an analysis/delete operation.
type removal struct {
	ID        string `json:"id"`
	ImagePath string `json:"image_path,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithLanguage sets how the response language is chosen for each request.
func WithLanguage(fn func(ctx context.Context) string) Option {
	return func(s *Service) { s.language = fn }
}

// WithOnline sets the connectivity check. Without it the service assumes it is online.
func WithOnline(fn func() bool) Option {
	return func(s *Service) { s.online = fn }
}

// Service is the analysis pipeline.
type Service struct {
	backend   ports.BackendPort
	storage   ports.ObjectStoragePort
	inference ports.InferencePort
	pipeline  *appcapture.Pipeline
	cache     *offline.Cache
	queue     *offline.Queue
	identity  ports.IdentityPort
	config    Config
	logger    *logging.Logger
	tracer    *tracing.Tracer

	online   func() bool
	language func(ctx context.Context) string
}

// NewService creates the analysis pipeline.
func NewService(
	backend ports.BackendPort,
	storage ports.ObjectStoragePort,
	inference ports.InferencePort,
	pipeline *appcapture.Pipeline,
	cache *offline.Cache,
	queue *offline.Queue,
	identity ports.IdentityPort,
	cfg Config,
	logger *logging.Logger,
	tracer *tracing.Tracer,
	opts ...Option,
) *Service {
	if cfg.Bucket == "" {
		cfg.Bucket = ports.BucketCropImages
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	s := &Service{
		backend:   backend,
		storage:   storage,
		inference: inference,
		pipeline:  pipeline,
		cache:     cache,
		queue:     queue,
		identity:  identity,
		config:    cfg,
		logger:    logger,
		tracer:    tracer,
		online:    func() bool { return true },
		language:  func(context.Context) string { return "en" },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze uploads the photo, records a pending analysis, runs inference and
// stores the outcome. Upload failures create no record. Inference failures
// leave the record failed and return RateLimited, QuotaExceeded or
// ServiceError. When offline, the compressed photo is spooled and the whole
// pipeline is queued; the result then has Queued set.
func (s *Service) Analyze(ctx context.Context, req Request) (*analysis.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(ctx, userID)

	img, err := s.pipeline.Process(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	cropType := strings.TrimSpace(req.CropType)
	ctx = logging.WithAnalysisID(ctx, id)

	if !s.online() {
		return s.enqueue(ctx, analysis.NewCropAnalysis(id, userID, "", "", cropType, req.Location), img, "")
	}

	ctx, span := s.tracer.StartAnalysisSpan(ctx, cropType, false)
	upload, err := s.pipeline.Upload(ctx, img, s.config.Bucket, userID)
	if err != nil {
		span.EndWithError(err)
		if domainerrors.IsTransient(err) {
			s.logger.InfoContext(ctx, "upload failed while offline, queueing analysis", "error", err)
			return s.enqueue(ctx, analysis.NewCropAnalysis(id, userID, "", "", cropType, req.Location), img, "")
		}
		return nil, err
	}

	a := analysis.NewCropAnalysis(id, userID, upload.URL, upload.Path, cropType, req.Location)
	res, err := s.run(ctx, a)
	if res == nil && domainerrors.IsTransient(err) {
		span.EndWithError(err)
		s.logger.InfoContext(ctx, "analysis record could not be created, queueing", "error", err)
		return s.enqueue(ctx, analysis.NewCropAnalysis(id, userID, "", "", cropType, req.Location), img, upload.Path)
	}
	if res != nil {
		span.SetStatusLabel(string(res.Analysis.Status))
	}
	span.Finish(err)
	if res != nil {
		metrics.RecordAnalysis(string(res.Analysis.Status), metrics.ModeOnline)
	}
	return res, err
}

// run persists a pending analysis and drives it to a terminal state. The
// returned result is non-nil once the record exists, even when err is set.
func (s *Service) run(ctx context.Context, a *analysis.CropAnalysis) (*analysis.Result, error) {
	if err := s.backend.Upsert(ctx, ports.TableAnalyses, a, "id"); err != nil {
		return nil, fmt.Errorf("create analysis record: %w", err)
	}

	s.transition(ctx, a, analysis.StatusProcessing)
	if err := s.backend.Update(ctx, ports.TableAnalyses, ports.Filter{"id": a.ID}, map[string]any{"status": a.Status}); err != nil {
		s.logger.WarnContext(ctx, "failed to mark analysis processing", "error", err)
	}

	resp, err := s.inference.Analyze(ctx, ports.InferenceRequest{
		ImageURL:   a.ImageURL,
		CropType:   a.CropType,
		AnalysisID: a.ID,
		UserID:     a.UserID,
		Language:   s.requestLanguage(ctx),
	})
	if err != nil {
		return s.fail(ctx, a, err)
	}

	// The record only becomes completed once both rows are stored; until
	// then a stays processing so a storage failure can still mark it failed.
	findings := analysis.Sanitize(resp)
	done := *a
	if err := done.Complete(findings); err != nil {
		return s.fail(ctx, a, err)
	}

	rec := findings.Recommendation(a.ID)
	if err := s.backend.Upsert(ctx, ports.TableRecommendations, rec, "analysis_id"); err != nil {
		return s.fail(ctx, a, fmt.Errorf("store recommendation: %w", err))
	}
	if err := s.backend.Upsert(ctx, ports.TableAnalyses, &done, "id"); err != nil {
		return s.fail(ctx, a, fmt.Errorf("store completed analysis: %w", err))
	}
	from := a.Status
	*a = done
	logging.LogAnalysisTransition(ctx, s.logger, a.ID, string(from), string(a.Status))

	res := &analysis.Result{Analysis: a, Recommendation: rec}
	s.remember(ctx, res)
	return res, nil
}

func (s *Service) fail(ctx context.Context, a *analysis.CropAnalysis, cause error) (*analysis.Result, error) {
	s.transition(ctx, a, analysis.StatusFailed)
	if err := s.backend.Update(ctx, ports.TableAnalyses, ports.Filter{"id": a.ID}, map[string]any{"status": a.Status}); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark analysis failed", "error", err)
	}
	res := &analysis.Result{Analysis: a}
	s.remember(ctx, res)

	if domainerrors.CodeOf(cause) == "" && !errors.Is(cause, context.Canceled) {
		cause = domainerrors.NewError(domainerrors.CodeService, "analysis failed", cause)
	}
	return res, cause
}

func (s *Service) transition(ctx context.Context, a *analysis.CropAnalysis, next analysis.Status) {
	from := a.Status
	if err := a.Transition(next); err != nil {
		s.logger.WarnContext(ctx, "analysis transition rejected", "error", err)
		return
	}
	logging.LogAnalysisTransition(ctx, s.logger, a.ID, string(from), string(next))
}

// remember caches a finished result and drops the stale list.
func (s *Service) remember(ctx context.Context, res *analysis.Result) {
	if err := s.cache.Set(ctx, offline.AnalysisKey(res.Analysis.ID), res, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to cache analysis", "error", err)
	}
	if err := s.cache.Remove(ctx, offline.AnalysesKey(res.Analysis.UserID)); err != nil {
		s.logger.WarnContext(ctx, "failed to drop cached analysis list", "error", err)
	}
}

// enqueue queues the full pipeline. Unless the image already reached
// storage at uploaded, the compressed image is spooled to disk first.
func (s *Service) enqueue(ctx context.Context, a *analysis.CropAnalysis, img *capture.Image, uploaded string) (*analysis.Result, error) {
	payload := queuedAnalysis{Analysis: a, ImagePath: uploaded, Language: s.language(ctx)}
	if uploaded == "" {
		spool, err := s.spool(a.ID, img.Data)
		if err != nil {
			return nil, err
		}
		payload.SpoolPath = spool
		a.ImagePath = spool
	} else {
		a.ImagePath = uploaded
	}

	if _, err := s.queue.Enqueue(ctx, domainoffline.EntityAnalysis, domainoffline.ActionCreate, payload); err != nil {
		if payload.SpoolPath != "" {
			_ = os.Remove(payload.SpoolPath)
		}
		return nil, err
	}

	res := &analysis.Result{Analysis: a, Queued: true}
	if err := s.cache.Set(ctx, offline.PendingAnalysisKey(a.UserID, a.ID), res, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to cache pending analysis", "error", err)
	}
	metrics.RecordAnalysis(string(a.Status), metrics.ModeQueued)
	s.logger.InfoContext(ctx, "analysis queued for sync", "crop_type", a.CropType)
	return res, nil
}

func (s *Service) spool(id string, data []byte) (string, error) {
	if s.config.SpoolDir == "" {
		return "", domainerrors.NewError(domainerrors.CodeConfiguration, "no spool directory for offline analyses", nil)
	}
	dir, err := filepath.Abs(s.config.SpoolDir)
	if err != nil {
		return "", fmt.Errorf("resolve spool directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create spool directory: %w", err)
	}
	path := filepath.Join(dir, id+".jpg")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("spool image: %w", err)
	}
	return path, nil
}

// ApplyQueued replays an analysis/create operation. A run that reaches a
// terminal state on the backend, completed or failed, counts as applied.
func (s *Service) ApplyQueued(ctx context.Context, op *domainoffline.PendingOperation) error {
	var q queuedAnalysis
	if err := op.Decode(&q); err != nil {
		return err
	}
	if q.Analysis == nil || q.Analysis.ID == "" {
		return domainerrors.Validation("queued analysis has no record")
	}

	a := *q.Analysis
	a.Status = analysis.StatusPending
	ctx = logging.WithAnalysisID(logging.WithUserID(ctx, a.UserID), a.ID)
	if q.Language != "" {
		ctx = context.WithValue(ctx, languageKey{}, q.Language)
	}

	ctx, span := s.tracer.StartAnalysisSpan(ctx, a.CropType, true)
	res, err := s.replay(ctx, &a, &q)
	if res != nil {
		span.SetStatusLabel(string(res.Analysis.Status))
		metrics.RecordAnalysis(string(res.Analysis.Status), metrics.ModeQueued)
	}
	span.Finish(err)

	if res == nil {
		return err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "queued analysis finished as failed", "error", err)
	}
	s.forgetPending(ctx, &a, q.SpoolPath)
	return nil
}

func (s *Service) replay(ctx context.Context, a *analysis.CropAnalysis, q *queuedAnalysis) (*analysis.Result, error) {
	if q.ImagePath == "" {
		if !security.WithinDir(s.config.SpoolDir, q.SpoolPath) {
			return nil, domainerrors.NewError(domainerrors.CodeUpload, "spooled image unavailable",
				fmt.Errorf("spool path %q outside %q", q.SpoolPath, s.config.SpoolDir))
		}
		data, err := os.ReadFile(q.SpoolPath)
		if err != nil {
			return nil, domainerrors.NewError(domainerrors.CodeUpload, "spooled image unavailable", err)
		}
		upload, err := s.pipeline.Upload(ctx, &capture.Image{Data: data, Format: "jpeg"}, s.config.Bucket, a.UserID)
		if err != nil {
			return nil, err
		}
		a.ImageURL, a.ImagePath = upload.URL, upload.Path
	} else {
		url, err := s.storage.CreateSignedURL(ctx, s.config.Bucket, q.ImagePath, appcapture.DefaultSignedURLTTL)
		if err != nil {
			return nil, err
		}
		a.ImageURL, a.ImagePath = url, q.ImagePath
	}
	return s.run(ctx, a)
}

func (s *Service) forgetPending(ctx context.Context, a *analysis.CropAnalysis, spool string) {
	if err := s.cache.Remove(ctx, offline.PendingAnalysisKey(a.UserID, a.ID)); err != nil {
		s.logger.WarnContext(ctx, "failed to drop pending analysis", "error", err)
	}
	if spool != "" && security.WithinDir(s.config.SpoolDir, spool) {
		if err := os.Remove(spool); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.WarnContext(ctx, "failed to remove spooled image", "path", spool, "error", err)
		}
	}
}

type languageKey struct{}

// requestLanguage prefers the language captured when an operation was queued.
func (s *Service) requestLanguage(ctx context.Context) string {
	if lang, ok := ctx.Value(languageKey{}).(string); ok && lang != "" {
		return lang
	}
	return s.language(ctx)
}

// List returns the user's analyses, newest first. Online reads refresh the
// cache; offline or failed reads fall back to it. Analyses still waiting in
// the queue are always included.
func (s *Service) List(ctx context.Context) ([]*analysis.CropAnalysis, error) {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var list []*analysis.CropAnalysis
	fetched := false
	if s.online() {
		list, err = s.fetch(ctx, userID)
		switch {
		case err == nil:
			fetched = true
		case domainerrors.IsTransient(err):
			s.logger.InfoContext(ctx, "analysis list unavailable, using cache", "error", err)
		default:
			return nil, err
		}
	}
	if !fetched && !s.cache.Get(ctx, offline.AnalysesKey(userID), &list) {
		list = nil
	}

	pending, err := s.pending(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read queued analyses", "error", err)
	}
	return merge(pending, list), nil
}

// Refresh refetches the user's analyses into the cache.
func (s *Service) Refresh(ctx context.Context) error {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return err
	}
	_, err = s.fetch(ctx, userID)
	return err
}

func (s *Service) fetch(ctx context.Context, userID string) ([]*analysis.CropAnalysis, error) {
	var list []*analysis.CropAnalysis
	err := s.backend.Select(ctx, ports.TableAnalyses, ports.Query{
		Filter:     ports.Filter{"user_id": userID},
		OrderBy:    "analysis_date",
		Descending: true,
		Limit:      s.config.ListLimit,
	}, &list)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, offline.AnalysesKey(userID), list, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to cache analysis list", "error", err)
	}
	return list, nil
}

// pending rebuilds queued analyses from the operation queue.
func (s *Service) pending(ctx context.Context, userID string) ([]*analysis.CropAnalysis, error) {
	ops, err := s.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*analysis.CropAnalysis
	for _, op := range ops {
		if op.EntityType != domainoffline.EntityAnalysis || op.Action != domainoffline.ActionCreate {
			continue
		}
		var q queuedAnalysis
		if err := op.Decode(&q); err != nil || q.Analysis == nil || q.Analysis.UserID != userID {
			continue
		}
		out = append(out, q.Analysis)
	}
	return out, nil
}

// QueuedIDs returns the ids of the user's analyses still waiting in the queue.
func (s *Service) QueuedIDs(ctx context.Context) (map[string]bool, error) {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.pending(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(pending))
	for _, a := range pending {
		ids[a.ID] = true
	}
	return ids, nil
}

// merge puts queued analyses first and drops any that already synced.
func merge(pending, synced []*analysis.CropAnalysis) []*analysis.CropAnalysis {
	seen := make(map[string]bool, len(synced))
	for _, a := range synced {
		seen[a.ID] = true
	}
	out := make([]*analysis.CropAnalysis, 0, len(pending)+len(synced))
	for _, a := range pending {
		if !seen[a.ID] {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnalysisDate.After(out[j].AnalysisDate) })
	return append(out, synced...)
}

// Get returns one analysis with its recommendation.
func (s *Service) Get(ctx context.Context, id string) (*analysis.Result, error) {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var res analysis.Result
	if s.cache.Get(ctx, offline.PendingAnalysisKey(userID, id), &res) {
		return &res, nil
	}
	if !s.online() {
		if s.cache.Get(ctx, offline.AnalysisKey(id), &res) {
			return &res, nil
		}
		return nil, domainerrors.ErrOffline
	}

	out, err := s.lookup(ctx, id)
	if err != nil {
		if domainerrors.IsTransient(err) && s.cache.Get(ctx, offline.AnalysisKey(id), &res) {
			return &res, nil
		}
		return nil, err
	}
	if err := s.cache.Set(ctx, offline.AnalysisKey(id), out, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to cache analysis", "error", err)
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*analysis.Result, error) {
	var rows []*analysis.CropAnalysis
	if err := s.backend.Select(ctx, ports.TableAnalyses, ports.Query{Filter: ports.Filter{"id": id}, Limit: 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domainerrors.NewError(domainerrors.CodeNotFound, "analysis "+id+" not found", nil)
	}
	res := &analysis.Result{Analysis: rows[0]}

	var recs []*analysis.TreatmentRecommendation
	if err := s.backend.Select(ctx, ports.TableRecommendations, ports.Query{Filter: ports.Filter{"analysis_id": id}, Limit: 1}, &recs); err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		res.Recommendation = recs[0]
	}
	return res, nil
}

// Relabel corrects the crop type of a synced analysis, queueing the change when offline.
func (s *Service) Relabel(ctx context.Context, id, cropType string) error {
	cropType = strings.TrimSpace(cropType)
	if id == "" || cropType == "" {
		return domainerrors.Validation("analysis id and crop type are required")
	}
	change := relabel{ID: id, CropType: cropType}
	return s.writeBehind(ctx, domainoffline.ActionUpdate, change, func(ctx context.Context) error {
		return s.applyRelabel(ctx, change)
	})
}

func (s *Service) applyRelabel(ctx context.Context, r relabel) error {
	if err := s.backend.Update(ctx, ports.TableAnalyses, ports.Filter{"id": r.ID}, map[string]string{"crop_type": r.CropType}); err != nil {
		return err
	}
	return s.cache.Remove(ctx, offline.AnalysisKey(r.ID))
}

// Delete removes an analysis, its recommendation and its stored image.
// Analyses still waiting to sync cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return err
	}
	var pending analysis.Result
	if s.cache.Get(ctx, offline.PendingAnalysisKey(userID, id), &pending) {
		return domainerrors.Validation("analysis %s has not synced yet", id)
	}

	rm := removal{ID: id}
	var cached analysis.Result
	switch {
	case s.cache.Get(ctx, offline.AnalysisKey(id), &cached) && cached.Analysis != nil:
		rm.ImagePath = cached.Analysis.ImagePath
	case s.online():
		if found, err := s.lookup(ctx, id); err == nil {
			rm.ImagePath = found.Analysis.ImagePath
		}
	}
	return s.writeBehind(ctx, domainoffline.ActionDelete, rm, func(ctx context.Context) error {
		return s.applyRemoval(ctx, rm)
	})
}

func (s *Service) applyRemoval(ctx context.Context, rm removal) error {
	if err := s.backend.Delete(ctx, ports.TableRecommendations, ports.Filter{"analysis_id": rm.ID}); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, ports.TableAnalyses, ports.Filter{"id": rm.ID}); err != nil {
		return err
	}
	if rm.ImagePath != "" {
		if err := s.storage.Remove(ctx, s.config.Bucket, []string{rm.ImagePath}); err != nil {
			s.logger.WarnContext(ctx, "failed to remove analysis image", "path", rm.ImagePath, "error", err)
		}
	}
	if err := s.cache.Remove(ctx, offline.AnalysisKey(rm.ID)); err != nil {
		return err
	}
	_, err := s.cache.InvalidateEntity(ctx, domainoffline.EntityAnalysis)
	return err
}

// writeBehind applies a change now when online, or queues it when offline
// or when the attempt fails for lack of connectivity.
func (s *Service) writeBehind(ctx context.Context, action domainoffline.Action, payload any, apply func(context.Context) error) error {
	if s.online() {
		err := apply(ctx)
		if err == nil || !domainerrors.IsTransient(err) {
			return err
		}
	}
	_, err := s.queue.Enqueue(ctx, domainoffline.EntityAnalysis, action, payload)
	return err
}

// Register installs the analysis handlers on the reconciler and the list
// refresh on the refresher.
func (s *Service) Register(r *offline.Reconciler, refresher *offline.Refresher) {
	r.Register(domainoffline.EntityAnalysis, domainoffline.ActionCreate, s.ApplyQueued)
	r.Register(domainoffline.EntityAnalysis, domainoffline.ActionUpdate, func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var change relabel
		if err := op.Decode(&change); err != nil {
			return err
		}
		return s.applyRelabel(ctx, change)
	})
	r.Register(domainoffline.EntityAnalysis, domainoffline.ActionDelete, func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var rm removal
		if err := op.Decode(&rm); err != nil {
			return err
		}
		return s.applyRemoval(ctx, rm)
	})
	if refresher != nil {
		refresher.Register(domainoffline.EntityAnalysis, s.Refresh)
	}
}
