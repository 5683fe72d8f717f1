package enrich

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/metrics"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/resilience"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/store"
)

const (
	defaultMaxConcurrent = 5
	defaultFreshness     = 30 * 24 * time.Hour
	// DefaultRetention is how long finished requests are kept by default.
	DefaultRetention = 24 * time.Hour
)

// Options configures a Coordinator. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent   int
	FreshnessWindow time.Duration
	Policy          *Policy
	Breaker         resilience.BreakerConfig
	Store           store.Store
	Metrics         *metrics.Metrics
	// MatchConfig, when set, is validated before every batch.
	MatchConfig *matcher.Config
	Now         func() time.Time
}

// BatchOptions are per-request settings.
type BatchOptions struct {
	// Sources in the order they are tried. Empty means the policy order, or
	// every registered source when the policy has none.
	Sources      []model.Source
	Priority     model.Priority
	SkipExisting bool
	// Timeout bounds the whole batch. Zero means no deadline.
	Timeout   time.Duration
	RequestID string
}

// Statistics aggregates every request the coordinator has seen.
type Statistics struct {
	TotalRequests        int                         `json:"total_requests"`
	ActiveRequests       int                         `json:"active_requests"`
	CompletedRequests    int                         `json:"completed_requests"`
	FailedRequests       int                         `json:"failed_requests"`
	CancelledRequests    int                         `json:"cancelled_requests"`
	BusinessesProcessed  int                         `json:"businesses_processed"`
	BusinessesEnriched   int                         `json:"businesses_enriched"`
	BusinessesSkipped    int                         `json:"businesses_skipped"`
	BusinessesFailed     int                         `json:"businesses_failed"`
	TotalCostUSD         float64                     `json:"total_cost_usd"`
	AverageExecutionTime time.Duration               `json:"average_execution_time"`
	SourceSuccesses      map[model.Source]int        `json:"source_successes"`
	SourceFailures       map[model.Source]int        `json:"source_failures"`
	BreakerStates        map[string]resilience.State `json:"breaker_states"`
	RegisteredSources    []model.Source              `json:"registered_sources"`
}

type binding struct {
	source   model.Source
	enricher Enricher
}

type request struct {
	progress model.Progress
	results  []model.EnrichmentResult
	cost     float64
	cancel   context.CancelFunc
	// result is set once, when the batch finishes or is cancelled; later
	// task bookkeeping is dropped.
	result *model.BatchEnrichmentResult
	done   chan struct{}
}

func (r *request) frozen() bool { return r.result != nil }

// Coordinator runs enrichment batches against the sources in a Registry.
type Coordinator struct {
	registry *Registry
	opts     Options
	breakers *resilience.Breakers

	mu        sync.Mutex
	requests  map[string]*request
	finished  int
	completed int
	failed    int
	cancelled int
	processed int
	enriched  int
	skipped   int
	bfailed   int
	totalCost float64
	totalTime time.Duration
	successes map[model.Source]int
	failures  map[model.Source]int
}

// NewCoordinator creates a Coordinator over registry.
func NewCoordinator(registry *Registry, opts Options) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = defaultFreshness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		registry:  registry,
		opts:      opts,
		breakers:  resilience.NewBreakers(opts.Breaker),
		requests:  make(map[string]*request),
		successes: make(map[model.Source]int),
		failures:  make(map[model.Source]int),
	}
}

// EnrichBatch enriches businesses and blocks until the batch finishes, is
// cancelled, or times out. Setup errors are returned alongside a FAILED
// result; per-business failures never are.
func (c *Coordinator) EnrichBatch(ctx context.Context, businesses []model.Business, opts BatchOptions) (*model.BatchEnrichmentResult, error) {
	req, runCtx, bindings, err := c.prepare(ctx, businesses, opts)
	if err != nil {
		return c.resultOf(req), err
	}
	return c.run(ctx, runCtx, req, businesses, bindings, opts), nil
}

// SubmitBatch starts a batch in the background and returns its request id.
// The batch outlives ctx; use CancelRequest to stop it.
func (c *Coordinator) SubmitBatch(ctx context.Context, businesses []model.Business, opts BatchOptions) (string, error) {
	bg := context.WithoutCancel(ctx)
	req, runCtx, bindings, err := c.prepare(bg, businesses, opts)
	if req == nil {
		return "", err
	}
	id := req.progress.RequestID
	if err != nil {
		return id, err
	}
	go c.run(bg, runCtx, req, businesses, bindings, opts)
	return id, nil
}

// Wait blocks until request id finishes and returns its result.
func (c *Coordinator) Wait(ctx context.Context, id string) (*model.BatchEnrichmentResult, error) {
	c.mu.Lock()
	req, ok := c.requests[id]
	c.mu.Unlock()
	if !ok {
		return nil, eris.Wrapf(ErrRequestNotFound, "request %s", id)
	}
	select {
	case <-req.done:
		return c.resultOf(req), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// prepare registers the request and resolves its sources. A nil request
// means the id could not be registered at all.
func (c *Coordinator) prepare(ctx context.Context, businesses []model.Business, opts BatchOptions) (*request, context.Context, []binding, error) {
	id := opts.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	priority := opts.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	started := c.opts.Now()
	req := &request{
		progress: model.Progress{
			RequestID:       id,
			Status:          model.BatchPending,
			Priority:        priority,
			TotalBusinesses: len(businesses),
			StartedAt:       &started,
		},
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if prev, ok := c.requests[id]; ok && !prev.frozen() {
		c.mu.Unlock()
		return nil, nil, nil, eris.Wrapf(ErrDuplicateRequest, "request %s", id)
	}
	c.requests[id] = req
	c.mu.Unlock()
	c.opts.Metrics.BatchStarted()

	bindings, err := c.resolve(opts.Sources)
	if err == nil && c.opts.MatchConfig != nil {
		if verr := c.opts.MatchConfig.Validate(); verr != nil {
			err = eris.Wrap(ErrInvalidConfig, verr.Error())
		}
	}
	if err != nil {
		zap.L().Error("enrich: batch setup failed", zap.String("request_id", id), zap.Error(err))
		c.mu.Lock()
		req.progress.Errors = append(req.progress.Errors, err.Error())
		c.finalizeLocked(req, model.BatchFailed)
		c.mu.Unlock()
		close(req.done)
		return req, nil, nil, err
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	c.mu.Lock()
	req.cancel = cancel
	c.mu.Unlock()
	return req, runCtx, bindings, nil
}

func (c *Coordinator) resolve(requested []model.Source) ([]binding, error) {
	sources := requested
	if len(sources) == 0 {
		sources = c.opts.Policy.Order()
	}
	if len(sources) == 0 {
		sources = c.registry.Sources()
	}

	out := make([]binding, 0, len(sources))
	seen := make(map[model.Source]bool, len(sources))
	for _, s := range sources {
		if seen[s] || c.opts.Policy.Disabled(s) {
			continue
		}
		seen[s] = true
		e, ok := c.registry.Get(s)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownSource, "source %q", s)
		}
		out = append(out, binding{source: s, enricher: e})
	}
	if len(out) == 0 {
		return nil, ErrNoSources
	}
	return out, nil
}

func (c *Coordinator) run(ctx, runCtx context.Context, req *request, businesses []model.Business, bindings []binding, opts BatchOptions) *model.BatchEnrichmentResult {
	defer close(req.done)

	c.mu.Lock()
	id := req.progress.RequestID
	if !req.frozen() {
		req.progress.Status = model.BatchInProgress
	}
	cancel := req.cancel
	c.mu.Unlock()
	defer cancel()

	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = string(b.source)
	}
	zap.L().Info("enrich: batch started",
		zap.String("request_id", id),
		zap.Int("businesses", len(businesses)),
		zap.Strings("sources", names),
		zap.Int("max_concurrent", c.opts.MaxConcurrent),
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(c.opts.MaxConcurrent)
	for _, b := range businesses {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c.process(gctx, req, b, bindings, opts.SkipExisting)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	if !req.frozen() {
		if missing := req.progress.TotalBusinesses - req.progress.ProcessedBusinesses; missing > 0 {
			reason := "batch stopped"
			if runCtx.Err() != nil {
				reason = runCtx.Err().Error()
			}
			req.progress.Errors = append(req.progress.Errors,
				eris.Errorf("enrich: %d businesses not processed: %s", missing, reason).Error())
			for i := 0; i < missing; i++ {
				req.progress.Record(model.OutcomeFailed)
				c.opts.Metrics.Business(string(model.OutcomeFailed))
			}
		}
	}
	toSave := append([]model.EnrichmentResult(nil), req.results...)
	c.mu.Unlock()

	persistErr := c.persist(context.WithoutCancel(ctx), id, toSave)

	c.mu.Lock()
	if !req.frozen() {
		if persistErr != nil {
			req.progress.Errors = append(req.progress.Errors, persistErr.Error())
		}
		c.finalizeLocked(req, model.BatchCompleted)
	}
	result := copyResult(req.result)
	c.mu.Unlock()

	zap.L().Info("enrich: batch finished",
		zap.String("request_id", id),
		zap.String("status", string(result.Status)),
		zap.Int("enriched", result.SuccessfulEnrichments),
		zap.Int("skipped", result.SkippedEnrichments),
		zap.Int("failed", result.FailedEnrichments),
		zap.Duration("elapsed", result.ExecutionTime),
	)
	return result
}

func (c *Coordinator) persist(ctx context.Context, id string, results []model.EnrichmentResult) error {
	if c.opts.Store == nil || len(results) == 0 {
		return nil
	}
	if err := c.opts.Store.SaveResults(ctx, results); err != nil {
		zap.L().Error("enrich: persist results failed", zap.String("request_id", id), zap.Error(err))
		return eris.Wrapf(err, "enrich: persist %d results", len(results))
	}
	return nil
}

// process enriches one business. It never returns an error: every outcome is
// recorded on the request.
func (c *Coordinator) process(ctx context.Context, req *request, b model.Business, bindings []binding, skipExisting bool) {
	recorded := false
	defer func() {
		if r := recover(); r != nil && !recorded {
			err := eris.Errorf("enrich: panic enriching business %s: %v", b.ID, r)
			zap.L().Error("enrich: task panicked", zap.String("business_id", b.ID), zap.Any("panic", r))
			c.record(req, model.OutcomeFailed, nil, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		recorded = true
		c.record(req, model.OutcomeFailed, nil, eris.Wrapf(err, "enrich: business %s", b.ID))
		return
	}

	if skipExisting && c.recentlyEnriched(ctx, b) {
		recorded = true
		c.record(req, model.OutcomeSkipped, nil, nil)
		return
	}

	var lastErr error
	for cursor := 0; cursor < len(bindings); cursor++ {
		bind := bindings[cursor]
		c.setCurrentSource(req, bind.source)

		start := c.opts.Now()
		res, err := resilience.Call(ctx, c.breakers.For(string(bind.source)), func(ctx context.Context) (*model.EnrichmentResult, error) {
			return bind.enricher.Enrich(ctx, b)
		})
		elapsed := c.opts.Now().Sub(start)

		if err != nil {
			lastErr = eris.Wrapf(err, "enrich: source %s for business %s", bind.source, b.ID)
			zap.L().Warn("enrich: source failed",
				zap.String("business_id", b.ID),
				zap.String("source", string(bind.source)),
				zap.Error(err),
			)
			c.opts.Metrics.SourceCall(string(bind.source), "error", elapsed)
			c.sourceOutcome(bind.source, false)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res == nil || !res.MatchConfidence.Usable() {
			c.opts.Metrics.SourceCall(string(bind.source), "miss", elapsed)
			continue
		}

		c.opts.Metrics.SourceCall(string(bind.source), "hit", elapsed)
		c.sourceOutcome(bind.source, true)

		out := *res
		out.BusinessID = b.ID
		out.Source = bind.source
		if out.EnrichedAt.IsZero() {
			out.EnrichedAt = c.opts.Now()
		}
		if out.CostUSD == 0 {
			out.CostUSD = c.opts.Policy.Cost(bind.source)
		}
		c.opts.Metrics.Accepted(string(bind.source), out.MatchScore, out.CostUSD)
		recorded = true
		c.record(req, model.OutcomeSuccess, &out, nil)
		return
	}

	if lastErr == nil {
		lastErr = eris.Wrapf(ErrNoUsableResult, "business %s", b.ID)
	}
	recorded = true
	c.record(req, model.OutcomeFailed, nil, lastErr)
}

func (c *Coordinator) recentlyEnriched(ctx context.Context, b model.Business) bool {
	window := c.opts.Policy.Freshness(c.opts.FreshnessWindow)
	now := c.opts.Now()
	if b.EnrichedWithin(window, now) {
		return true
	}
	if c.opts.Store == nil || b.ID == "" {
		return false
	}
	last, ok, err := c.opts.Store.LastEnriched(ctx, b.ID)
	if err != nil {
		zap.L().Warn("enrich: freshness lookup failed", zap.String("business_id", b.ID), zap.Error(err))
		return false
	}
	return ok && now.Sub(last) < window
}

func (c *Coordinator) record(req *request, outcome model.Outcome, res *model.EnrichmentResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.frozen() {
		return
	}
	c.opts.Metrics.Business(string(outcome))
	req.progress.Record(outcome)
	if res != nil {
		req.results = append(req.results, *res)
		req.cost += res.CostUSD
	}
	if err != nil {
		req.progress.Errors = append(req.progress.Errors, err.Error())
	}
}

func (c *Coordinator) setCurrentSource(req *request, s model.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !req.frozen() {
		req.progress.CurrentSource = s
	}
}

func (c *Coordinator) sourceOutcome(s model.Source, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.successes[s]++
	} else {
		c.failures[s]++
	}
}

// finalizeLocked freezes req with status. Callers hold c.mu.
func (c *Coordinator) finalizeLocked(req *request, status model.BatchStatus) {
	if req.frozen() {
		return
	}
	req.progress.Status = status
	req.progress.CurrentSource = ""
	var elapsed time.Duration
	if req.progress.StartedAt != nil {
		elapsed = c.opts.Now().Sub(*req.progress.StartedAt)
	}
	snap := req.progress.Snapshot()
	req.result = &model.BatchEnrichmentResult{
		RequestID:             snap.RequestID,
		Status:                status,
		TotalProcessed:        snap.ProcessedBusinesses,
		SuccessfulEnrichments: snap.EnrichedBusinesses,
		SkippedEnrichments:    snap.SkippedBusinesses,
		FailedEnrichments:     snap.FailedBusinesses,
		Results:               append([]model.EnrichmentResult{}, req.results...),
		Errors:                append([]string(nil), snap.Errors...),
		TotalCostUSD:          req.cost,
		ExecutionTime:         elapsed,
		Progress:              snap,
	}

	c.finished++
	switch status {
	case model.BatchCompleted:
		c.completed++
	case model.BatchFailed:
		c.failed++
	case model.BatchCancelled:
		c.cancelled++
	}
	c.processed += snap.ProcessedBusinesses
	c.enriched += snap.EnrichedBusinesses
	c.skipped += snap.SkippedBusinesses
	c.bfailed += snap.FailedBusinesses
	c.totalCost += req.cost
	c.totalTime += elapsed
	c.opts.Metrics.BatchFinished(string(status), elapsed)
}

// GetProgress returns a snapshot of a request's progress.
func (c *Coordinator) GetProgress(id string) (model.Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[id]
	if !ok {
		return model.Progress{}, false
	}
	return req.progress.Snapshot(), true
}

// GetBatchResult returns the result of a finished or cancelled request.
func (c *Coordinator) GetBatchResult(id string) (*model.BatchEnrichmentResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[id]
	if !ok || !req.frozen() {
		return nil, false
	}
	return copyResult(req.result), true
}

func (c *Coordinator) resultOf(req *request) *model.BatchEnrichmentResult {
	if req == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyResult(req.result)
}

// CancelRequest stops an active request and freezes its result as
// cancelled. It reports true only for the call that cancelled it.
func (c *Coordinator) CancelRequest(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[id]
	if !ok || req.frozen() {
		return false
	}
	if req.cancel != nil {
		req.cancel()
	}
	req.progress.Errors = append(req.progress.Errors, "enrich: request cancelled")
	c.finalizeLocked(req, model.BatchCancelled)
	zap.L().Info("enrich: batch cancelled", zap.String("request_id", id))
	return true
}

// CleanupOldRequests drops finished requests that started more than maxAge
// ago and returns how many were removed. Active requests and requests
// without a start time are kept. maxAge <= 0 means DefaultRetention.
func (c *Coordinator) CleanupOldRequests(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := c.opts.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, req := range c.requests {
		if !req.frozen() || req.progress.StartedAt == nil {
			continue
		}
		if req.progress.StartedAt.Before(cutoff) {
			delete(c.requests, id)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Info("enrich: purged old requests", zap.Int("removed", removed))
	}
	return removed
}

// GetStatistics aggregates counters over all requests.
func (c *Coordinator) GetStatistics() Statistics {
	states := c.breakers.States()
	sources := c.registry.Sources()

	c.mu.Lock()
	defer c.mu.Unlock()
	s := Statistics{
		TotalRequests:       len(c.requests),
		CompletedRequests:   c.completed,
		FailedRequests:      c.failed,
		CancelledRequests:   c.cancelled,
		BusinessesProcessed: c.processed,
		BusinessesEnriched:  c.enriched,
		BusinessesSkipped:   c.skipped,
		BusinessesFailed:    c.bfailed,
		TotalCostUSD:        c.totalCost,
		SourceSuccesses:     make(map[model.Source]int, len(c.successes)),
		SourceFailures:      make(map[model.Source]int, len(c.failures)),
		BreakerStates:       states,
		RegisteredSources:   sources,
	}
	for _, req := range c.requests {
		if !req.frozen() {
			s.ActiveRequests++
		}
	}
	if c.finished > 0 {
		s.AverageExecutionTime = c.totalTime / time.Duration(c.finished)
	}
	for k, v := range c.successes {
		s.SourceSuccesses[k] = v
	}
	for k, v := range c.failures {
		s.SourceFailures[k] = v
	}
	return s
}

// Profile merges every recorded result for a business into one stamped
// profile. History comes from the store when one is configured, otherwise
// from requests still held in memory.
func (c *Coordinator) Profile(ctx context.Context, businessID string) (model.EnrichmentData, error) {
	var history []model.EnrichmentResult
	if c.opts.Store != nil {
		h, err := c.opts.Store.History(ctx, businessID)
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: history for %s", businessID)
		}
		history = h
	} else {
		c.mu.Lock()
		for _, req := range c.requests {
			for _, r := range req.results {
				if r.BusinessID == businessID {
					history = append(history, r)
				}
			}
		}
		c.mu.Unlock()
	}

	sort.SliceStable(history, func(i, j int) bool { return history[i].EnrichedAt.Before(history[j].EnrichedAt) })
	profile := model.EnrichmentData{}
	for _, r := range history {
		profile = MergeEnrichmentData(profile, FromResult(r))
	}
	return profile, nil
}

func copyResult(r *model.BatchEnrichmentResult) *model.BatchEnrichmentResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Results = append([]model.EnrichmentResult{}, r.Results...)
	out.Errors = append([]string(nil), r.Errors...)
	out.Progress = r.Progress.Snapshot()
	return &out
}
