package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/agriplan/internal/analysis"
	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/model"
	"github.com/iliyamo/agriplan/internal/queue"
)

// ResultCache stores validated result documents by payload digest.
type ResultCache interface {
	Get(ctx context.Context, digest string) ([]byte, bool, error)
	Set(ctx context.Context, digest string, doc []byte) error
}

// refundTimeout bounds the quota refund and the event publish, which run on
// a context detached from the (possibly cancelled) request.
const refundTimeout = 5 * time.Second

// AnalysisService runs the quota-gated analysis pipeline.
type AnalysisService struct {
	Quota     *QuotaController
	Provider  analysis.Provider
	Cache     ResultCache // optional
	Publisher queue.Publisher
	Timeout   time.Duration
	Now       func() time.Time

	log *zap.Logger
	wg  sync.WaitGroup
}

func NewAnalysisService(quota *QuotaController, provider analysis.Provider, cache ResultCache,
	pub queue.Publisher, timeout time.Duration, log *zap.Logger) *AnalysisService {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &AnalysisService{
		Quota:     quota,
		Provider:  provider,
		Cache:     cache,
		Publisher: pub,
		Timeout:   timeout,
		Now:       time.Now,
		log:       log.Named("analysis"),
	}
}

// Outcome is a successful analysis.
type Outcome struct {
	Result analysis.Result
	Cached bool
}

// Analyze builds the prompt, reserves one unit of the caller's quota, gets
// a validated result (from the cache or the provider) and commits the
// charge.  On any failure after the reservation the unit is refunded, so
// usage_daily only counts successful analyses.
func (s *AnalysisService) Analyze(ctx context.Context, id model.Identity, req analysis.Request) (Outcome, error) {
	start := s.Now()
	payload, err := analysis.BuildRequest(req)
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.Quota.CheckAndReserve(ctx, id.ID)
	if err != nil {
		return Outcome{}, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		defer cancel()
		_ = res.Release(rctx)
	}()

	digest := payload.CacheKey()
	out, err := s.fromCache(ctx, digest)
	if err != nil {
		return Outcome{}, err
	}
	if !out.Cached {
		if out.Result, err = s.generate(ctx, payload); err != nil {
			s.log.Warn("analysis failed", zap.Uint64("user_id", id.ID), zap.String("plant", req.Plant), zap.Error(err))
			return Outcome{}, err
		}
	}

	if err := res.Commit(ctx); err != nil {
		return Outcome{}, err
	}
	committed = true

	if !out.Cached && s.Cache != nil {
		if err := s.Cache.Set(ctx, digest, out.Result.Raw); err != nil {
			s.log.Warn("cache store failed", zap.Error(err))
		}
	}

	elapsed := s.Now().Sub(start)
	s.log.Info("analysis completed",
		zap.Uint64("user_id", id.ID),
		zap.String("plant", req.Plant),
		zap.Bool("cached", out.Cached),
		zap.Duration("duration", elapsed))
	s.publish(ctx, id, req, payload.Legacy, out.Cached, elapsed)
	return out, nil
}

// Wait blocks until every in-flight event publish has finished.
func (s *AnalysisService) Wait() { s.wg.Wait() }

func (s *AnalysisService) fromCache(ctx context.Context, digest string) (Outcome, error) {
	if s.Cache == nil {
		return Outcome{}, nil
	}
	doc, ok, err := s.Cache.Get(ctx, digest)
	if err != nil {
		s.log.Warn("cache lookup failed", zap.Error(err))
		return Outcome{}, nil
	}
	if !ok {
		return Outcome{}, nil
	}
	result, err := analysis.ParseAndValidate(string(doc))
	if err != nil {
		s.log.Warn("ignoring invalid cached result", zap.String("digest", digest), zap.Error(err))
		return Outcome{}, nil
	}
	return Outcome{Result: result, Cached: true}, nil
}

func (s *AnalysisService) generate(ctx context.Context, payload analysis.PromptPayload) (analysis.Result, error) {
	pctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	raw, err := s.Provider.Generate(pctx, payload)
	if err != nil {
		timedOut := errors.Is(pctx.Err(), context.DeadlineExceeded)
		switch {
		case timedOut && !errors.Is(err, apperr.ErrProviderTimeout):
			return analysis.Result{}, fmt.Errorf("%w: %w", apperr.ErrProvider, apperr.ErrProviderTimeout)
		case !errors.Is(err, apperr.ErrProvider):
			return analysis.Result{}, fmt.Errorf("%w: %w", apperr.ErrProvider, err)
		}
		return analysis.Result{}, err
	}
	return analysis.ParseAndValidate(raw)
}

// publish sends the completion event in the background.  The usage figures
// are read after the commit so the event shows the charged counter.
func (s *AnalysisService) publish(ctx context.Context, id model.Identity, req analysis.Request, legacy, cached bool, elapsed time.Duration) {
	ev := queue.AnalysisCompletedEvent{
		EventID:     uuid.NewString(),
		UserID:      id.ID,
		Username:    id.Username,
		Legacy:      legacy,
		Cached:      cached,
		DurationMS:  elapsed.Milliseconds(),
		CompletedAt: s.Now().UTC(),
	}
	if !legacy {
		ev.Plant = strings.TrimSpace(req.Plant)
		ev.Region = strings.TrimSpace(req.Region)
		ev.Country = strings.TrimSpace(req.Country)
		ev.Environment = req.Environment
		ev.System = req.System
		ev.Language = strings.ToLower(strings.TrimSpace(req.Language))
		if ev.Language == "" {
			ev.Language = analysis.LangEnglish
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		defer cancel()
		if u, err := s.Quota.Users.GetByID(pctx, id.ID); err == nil {
			ev.UsageDaily, ev.LimitDaily = u.UsageDaily, u.LimitDaily
		}
		if err := s.Publisher.PublishAnalysisCompleted(pctx, ev); err != nil {
			s.log.Warn("event publish failed", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}()
}
