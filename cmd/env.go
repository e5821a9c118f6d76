package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/aggregate"
	"github.com/sells-group/regionstat/internal/classify"
	"github.com/sells-group/regionstat/internal/config"
	"github.com/sells-group/regionstat/internal/fetch"
	"github.com/sells-group/regionstat/internal/refresh"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/resilience"
	"github.com/sells-group/regionstat/internal/sampling"
	"github.com/sells-group/regionstat/internal/store"
	"github.com/sells-group/regionstat/pkg/openmeteo"
)

// engineEnv holds the registry, orchestrator and journal shared by the
// serve and sample commands.
type engineEnv struct {
	Registry     *region.Registry
	Orchestrator *refresh.Orchestrator
	Meteo        openmeteo.Client
	Store        store.Store // may be nil
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine builds the refresh stack from configuration. Callers should
// defer env.Close().
func initEngine(ctx context.Context, c *config.Config, journal bool) (*engineEnv, error) {
	mode, err := aggregate.ParseMode(c.Aggregate.Mode)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if journal {
		st, err = initStore(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	reg := region.NewRegistry(c.DataSources...)
	meteo := newMeteoClient(c.Meteo)
	src := fetch.NewMeteoSource(meteo, time.Now)
	fetcher := fetch.New(src, fetchConfig(c.Fetch))
	planner := sampling.NewPlanner(sampling.WithSeed(c.Sampling.Seed))

	opts := []refresh.Option{
		refresh.WithMode(mode),
		refresh.WithRules(c.Classify.Rules),
		refresh.WithClassifier(classify.New(c.Classify.DefaultColor)),
		refresh.WithWindow(region.TimeWindow{Start: c.Window.Start, End: c.Window.End}),
	}
	if st != nil {
		opts = append(opts, refresh.WithStore(st))
	}

	zap.L().Debug("engine initialized",
		zap.String("mode", string(mode)),
		zap.Strings("datasources", c.DataSources),
		zap.Bool("journal", st != nil),
	)

	return &engineEnv{
		Registry:     reg,
		Orchestrator: refresh.New(reg, planner, fetcher, opts...),
		Meteo:        meteo,
		Store:        st,
	}, nil
}

// initStore opens the configured cycle journal. The none driver yields nil.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

func newMeteoClient(c config.MeteoConfig) openmeteo.Client {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breakerCfg := resilience.DefaultBreakerConfig("openmeteo")
	if c.CircuitFailures > 0 {
		breakerCfg.FailureThreshold = c.CircuitFailures
	}
	if c.CircuitResetSecs > 0 {
		breakerCfg.ResetTimeout = time.Duration(c.CircuitResetSecs) * time.Second
	}

	return openmeteo.NewClient(
		openmeteo.WithBaseURL(c.BaseURL),
		openmeteo.WithHTTPClient(&http.Client{Timeout: timeout}),
		openmeteo.WithRateLimit(c.RateLimitRPS),
		openmeteo.WithRetryPolicy(resilience.NewRetryPolicy(c.RetryAttempts, c.RetryBackoffMs)),
		openmeteo.WithBreaker(resilience.NewBreaker(breakerCfg)),
	)
}

func fetchConfig(c config.FetchConfig) fetch.Config {
	return fetch.Config{
		BatchSize:    c.BatchSize,
		BatchPause:   time.Duration(c.BatchPauseMs) * time.Millisecond,
		PointTimeout: time.Duration(c.PointTimeoutSecs) * time.Second,
	}
}
