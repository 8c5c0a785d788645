package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hostpulse/hostpulse/internal/aggregate"
)

// AggregationAPI exposes the worker's aggregation tiers for inspection and
// live retuning. Mounted on the worker's listener behind operator auth.
type AggregationAPI struct {
	Tiers []*aggregate.Aggregator
}

type tierView struct {
	Tier           int   `json:"tier"`
	PeriodSeconds  int64 `json:"period_seconds"`
	MaxAgeSeconds  int64 `json:"max_age_seconds"`
	ExpungeSeconds int64 `json:"expunge_seconds"`
	FromAggregated bool  `json:"from_aggregated"`
}

type retuneEnvelope struct {
	Tier           *int  `json:"tier" validate:"required,min=0"`
	PeriodSeconds  int64 `json:"period_seconds" validate:"required,min=1"`
	MaxAgeSeconds  int64 `json:"max_age_seconds" validate:"required,min=1"`
	ExpungeSeconds int64 `json:"expunge_seconds" validate:"min=0"`
}

// GetHandler reports the live parameters of every tier.
func (a *AggregationAPI) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		views := make([]tierView, 0, len(a.Tiers))
		for i, ag := range a.Tiers {
			p := ag.Current()
			views = append(views, tierView{
				Tier:           i,
				PeriodSeconds:  int64(p.Period / time.Second),
				MaxAgeSeconds:  int64(p.MaxAge / time.Second),
				ExpungeSeconds: int64(p.ExpungePeriod / time.Second),
				FromAggregated: p.FromAggregated,
			})
		}
		writeOK(w, map[string]any{"tiers": views})
	}
}

// RetuneHandler swaps one tier's parameters. The input table selection is
// fixed at construction and cannot be retuned.
func (a *AggregationAPI) RetuneHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env retuneEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		if *env.Tier >= len(a.Tiers) {
			writeFailed(w, "unknown tier")
			return
		}
		ag := a.Tiers[*env.Tier]
		p := aggregate.Params{
			Period:         time.Duration(env.PeriodSeconds) * time.Second,
			MaxAge:         time.Duration(env.MaxAgeSeconds) * time.Second,
			ExpungePeriod:  time.Duration(env.ExpungeSeconds) * time.Second,
			FromAggregated: ag.Current().FromAggregated,
		}
		if err := p.Validate(); err != nil {
			writeFailed(w, "max_age below period")
			return
		}
		ag.Configure(p)
		slog.Info("aggregation tier retuned",
			slog.Int("tier", *env.Tier),
			slog.Int64("period_seconds", env.PeriodSeconds),
			slog.Int64("max_age_seconds", env.MaxAgeSeconds),
			slog.Int64("expunge_seconds", env.ExpungeSeconds))
		writeOK(w, nil)
	}
}
