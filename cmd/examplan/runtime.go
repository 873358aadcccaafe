package main

import (
	"context"
	"io"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"examplan/internal/catalog"
	"examplan/internal/config"
	appLog "examplan/internal/log"
	"examplan/internal/metrics"
	"examplan/internal/schedule"
	"examplan/internal/store"
)

// runtime holds the shared state of one command invocation. Storage and
// the catalog client are opened on first use.
type runtime struct {
	ctx context.Context
	cfg *config.Config
	out io.Writer

	reg *prom.Registry
	rec *metrics.Recorder

	adapter *store.Adapter
	engine  *schedule.Engine
	catalog *catalog.Client
}

func newRuntime(ctx context.Context, cfg *config.Config, out io.Writer) *runtime {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &runtime{
		ctx: ctx,
		cfg: cfg,
		out: out,
		reg: reg,
		rec: metrics.New(reg),
	}
}

func (rt *runtime) Engine() (*schedule.Engine, error) {
	if rt.engine != nil {
		return rt.engine, nil
	}
	b, err := store.Open(rt.ctx, rt.cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.adapter = store.NewAdapter(b, rt.rec)
	rt.engine = schedule.New(rt.ctx, rt.adapter,
		schedule.WithLocation(rt.cfg.Location()),
		schedule.WithRecorder(rt.rec),
	)
	appLog.Debug("schedule engine ready",
		"driver", rt.cfg.Storage.Driver,
		"items", rt.engine.Len(),
		"history", len(rt.engine.History()),
	)
	return rt.engine, nil
}

func (rt *runtime) Catalog() *catalog.Client {
	if rt.catalog == nil {
		rt.catalog = catalog.NewFromConfig(rt.cfg.Catalog, rt.rec)
	}
	return rt.catalog
}

func (rt *runtime) Close() error {
	if rt.adapter == nil {
		return nil
	}
	return rt.adapter.Close()
}
