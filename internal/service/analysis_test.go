package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/agriplan/internal/analysis"
	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/model"
)

const stubPlan = `{"feasibility_check":{"is_possible":true,"status_title":"Ideal","reason":"Chanthaburi is durian country"},"action_timeline":[{"period":"Week 1","action":"Dig planting hole","details":"1m x 1m"}],"stub_marker":"kept as-is"}`

func durian() analysis.Request {
	return analysis.Request{
		Plant:       "Durian",
		Region:      "Chanthaburi",
		Country:     "Thailand",
		Environment: analysis.EnvOutdoorSun,
		System:      analysis.SystemSoil,
	}
}

func staticProvider(reply string, calls *atomic.Int32) analysis.Provider {
	return analysis.ProviderFunc(func(ctx context.Context, p analysis.PromptPayload) (string, error) {
		if calls != nil {
			calls.Add(1)
		}
		return reply, nil
	})
}

func (f *fixture) analysisService(p analysis.Provider, cache ResultCache, pub *recordingPublisher) *AnalysisService {
	svc := NewAnalysisService(f.quota, p, cache, nil, time.Second, nil)
	if pub != nil {
		svc.Publisher = pub
	}
	return svc
}

func TestAnalyze_ChargesOnSuccessAndEchoesReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.approvedUser(t, "farmer")
	pub := &recordingPublisher{}
	svc := f.analysisService(staticProvider("```json\n"+stubPlan+"\n```", nil), nil, pub)

	out, err := svc.Analyze(ctx, id, durian())
	require.NoError(t, err)
	assert.JSONEq(t, stubPlan, string(out.Result.Raw))
	assert.False(t, out.Cached)
	assert.Equal(t, 1, f.usage(t, id.ID))

	svc.Wait()
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, id.ID, events[0].UserID)
	assert.Equal(t, "Durian", events[0].Plant)
	assert.Equal(t, "en", events[0].Language)
	assert.Equal(t, 1, events[0].UsageDaily)
	assert.NotEmpty(t, events[0].EventID)
}

func TestAnalyze_FailuresDoNotCharge(t *testing.T) {
	cases := map[string]struct {
		provider analysis.Provider
		want     error
	}{
		"schema violation": {
			provider: staticProvider(`{"action_timeline":[{"period":"w1","action":"a"}]}`, nil),
			want:     apperr.ErrSchemaViolation,
		},
		"provider error": {
			provider: analysis.ProviderFunc(func(context.Context, analysis.PromptPayload) (string, error) {
				return "", errors.New("boom")
			}),
			want: apperr.ErrProvider,
		},
		"provider timeout": {
			provider: analysis.ProviderFunc(func(ctx context.Context, _ analysis.PromptPayload) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
			want: apperr.ErrProviderTimeout,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			id := f.approvedUser(t, "farmer")
			svc := NewAnalysisService(f.quota, tc.provider, nil, nil, 50*time.Millisecond, nil)

			_, err := svc.Analyze(context.Background(), id, durian())
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, f.usage(t, id.ID))
		})
	}
}

func TestAnalyze_CancelledRequestIsRefunded(t *testing.T) {
	f := newFixture(t)
	id := f.approvedUser(t, "farmer")

	ctx, cancel := context.WithCancel(context.Background())
	p := analysis.ProviderFunc(func(pctx context.Context, _ analysis.PromptPayload) (string, error) {
		cancel()
		<-pctx.Done()
		return "", pctx.Err()
	})
	svc := NewAnalysisService(f.quota, p, nil, nil, time.Second, nil)

	_, err := svc.Analyze(ctx, id, durian())
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.NotErrorIs(t, err, apperr.ErrProviderTimeout)
	assert.Equal(t, 0, f.usage(t, id.ID))
}

func TestAnalyze_InvalidInputTouchesNoQuota(t *testing.T) {
	f := newFixture(t)
	id := f.approvedUser(t, "farmer")
	var calls atomic.Int32
	svc := NewAnalysisService(f.quota, staticProvider(stubPlan, &calls), nil, nil, time.Second, nil)

	req := durian()
	req.Environment = "moon"
	_, err := svc.Analyze(context.Background(), id, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 0, f.usage(t, id.ID))
}

func TestAnalyze_LimitThreeAdmitsThree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.approvedUser(t, "farmer")
	require.NoError(t, f.quota.SetLimit(ctx, id.ID, 3))
	var calls atomic.Int32
	svc := NewAnalysisService(f.quota, staticProvider(stubPlan, &calls), nil, nil, time.Second, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Analyze(ctx, id, durian())
		require.NoError(t, err)
	}
	_, err := svc.Analyze(ctx, id, durian())
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.EqualValues(t, 3, calls.Load(), "rejected calls never reach the provider")
	assert.Equal(t, 3, f.usage(t, id.ID))

	require.NoError(t, f.quota.ResetUsage(ctx, id.ID))
	_, err = svc.Analyze(ctx, id, durian())
	assert.NoError(t, err)
	assert.Equal(t, 1, f.usage(t, id.ID))
}

func TestAnalyze_CacheHitStillCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.approvedUser(t, "farmer")
	var calls atomic.Int32
	svc := NewAnalysisService(f.quota, staticProvider(stubPlan, &calls), newMemoryCache(), nil, time.Second, nil)

	first, err := svc.Analyze(ctx, id, durian())
	require.NoError(t, err)
	second, err := svc.Analyze(ctx, id, durian())
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, string(first.Result.Raw), string(second.Result.Raw))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 2, f.usage(t, id.ID))
}

func TestAnalyze_PendingUserRejected(t *testing.T) {
	f := newFixture(t)
	u, err := f.auth.Register(context.Background(), "farmer", "pw")
	require.NoError(t, err)
	svc := NewAnalysisService(f.quota, staticProvider(stubPlan, nil), nil, nil, time.Second, nil)

	_, err = svc.Analyze(context.Background(), model.Identity{ID: u.ID, Role: u.Role, Username: u.Username}, durian())
	assert.ErrorIs(t, err, apperr.ErrAccountPending)
}
