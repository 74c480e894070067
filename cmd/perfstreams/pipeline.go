package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/perfstreams/config"
	"github.com/c360/perfstreams/errors"
	"github.com/c360/perfstreams/health"
	"github.com/c360/perfstreams/input/natsingest"
	"github.com/c360/perfstreams/input/record"
	"github.com/c360/perfstreams/input/udp"
	"github.com/c360/perfstreams/input/websocket"
	"github.com/c360/perfstreams/metric"
	"github.com/c360/perfstreams/natsclient"
	"github.com/c360/perfstreams/output/archive"
	"github.com/c360/perfstreams/output/file"
	"github.com/c360/perfstreams/output/httppost"
	"github.com/c360/perfstreams/output/natspub"
	"github.com/c360/perfstreams/performance"
)

// natsConnectTimeout bounds the wait for the first NATS connection.
const natsConnectTimeout = 10 * time.Second

// pipeline owns every runtime component: one reporter, the sinks subscribed
// to it, the inputs feeding it and the NATS and metrics plumbing around them.
type pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	reporter *performance.Reporter

	nats          *natsclient.Client
	metricsServer *metric.Server
	fileSink      *file.Output
	unsubscribe   []func()

	natsIngest *natsingest.Input
	udpInput   *udp.Input
	wsInput    *websocket.Input
}

// newPipeline constructs every enabled component without starting any of
// them.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
	}

	reporter, err := performance.NewReporter(cfg.Reporter.Performance(),
		performance.WithLogger(logger),
		performance.WithMetricsRegistry(p.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create reporter: %w", err)
	}
	p.reporter = reporter
	p.monitor.Register("reporter", reporterProbe(reporter))

	if cfg.UsesNATS() {
		if err := p.buildNATS(); err != nil {
			return nil, err
		}
	}
	if err := p.buildSinks(); err != nil {
		_ = p.close()
		return nil, err
	}
	if err := p.buildInputs(); err != nil {
		_ = p.close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		p.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, p.registry)
		p.metricsServer.SetHealthHandler(health.Handler(p.monitor, appName))
	}
	return p, nil
}

func (p *pipeline) buildNATS() error {
	n := p.cfg.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(p.logger),
		natsclient.WithMetrics(p.registry),
		natsclient.WithMaxReconnects(n.MaxReconnects),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				p.monitor.UpdateHealthy("nats", "connected")
			} else {
				p.monitor.UpdateUnhealthy("nats", "disconnected")
			}
		}),
	}
	if n.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(n.ReconnectWait.Std()))
	}
	if n.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(n.Timeout.Std()))
	}
	if n.Name != "" {
		opts = append(opts, natsclient.WithName(n.Name))
	}
	if n.Username != "" {
		opts = append(opts, natsclient.WithCredentials(n.Username, n.Password))
	}
	if n.Token != "" {
		opts = append(opts, natsclient.WithToken(n.Token))
	}

	client, err := natsclient.NewClient(n.URL, opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	p.nats = client
	p.monitor.UpdateUnhealthy("nats", "not connected")
	return nil
}

func (p *pipeline) buildSinks() error {
	if p.cfg.Publish.Enabled {
		out, err := natspub.NewOutput(p.nats, p.cfg.Publish.Config, p.logger)
		if err != nil {
			return fmt.Errorf("create NATS publisher: %w", err)
		}
		if err := p.subscribe(out, p.cfg.Publish.EntryTypes); err != nil {
			return err
		}
		p.monitor.Register("sink."+out.Name(), func() health.Status {
			s := out.Stats()
			return deliveryStatus(s.Published, s.Failed)
		})
	}

	if p.cfg.File.Enabled {
		out, err := file.NewOutput(p.cfg.File.Config, p.logger)
		if err != nil {
			return fmt.Errorf("create file output: %w", err)
		}
		p.fileSink = out
		if err := p.subscribe(out, p.cfg.File.EntryTypes); err != nil {
			return err
		}
		p.monitor.Register("sink."+out.Name(), func() health.Status {
			s := out.Stats()
			return deliveryStatus(s.EntriesWritten, s.WriteErrors)
		})
	}

	if p.cfg.HTTP.Enabled {
		out, err := httppost.NewOutput(p.cfg.HTTP.Config, p.logger)
		if err != nil {
			return fmt.Errorf("create HTTP output: %w", err)
		}
		if err := p.subscribe(out, p.cfg.HTTP.EntryTypes); err != nil {
			return err
		}
		p.monitor.Register("sink."+out.Name(), func() health.Status {
			s := out.Stats()
			return deliveryStatus(s.Sent, s.Failed)
		})
	}
	return nil
}

func (p *pipeline) subscribe(listener performance.Listener, names []string) error {
	types, err := config.ParseEntryTypes(names)
	if err != nil {
		return err
	}
	unsubscribe, err := p.reporter.Subscribe(listener, types...)
	if err != nil {
		return fmt.Errorf("subscribe listener: %w", err)
	}
	p.unsubscribe = append(p.unsubscribe, unsubscribe)
	return nil
}

func (p *pipeline) buildInputs() error {
	if !p.cfg.Ingest.Enabled && !p.cfg.UDP.Enabled && !p.cfg.WebSocket.Enabled {
		return nil
	}
	ingester := record.NewIngester(p.reporter, p.logger, p.registry)

	if p.cfg.Ingest.Enabled {
		in, err := natsingest.NewInput(p.nats, p.cfg.Ingest.Config, ingester, p.logger)
		if err != nil {
			return fmt.Errorf("create NATS ingest: %w", err)
		}
		p.natsIngest = in
	}
	if p.cfg.UDP.Enabled {
		in, err := udp.NewInput(p.cfg.UDP.Config, ingester, p.logger, p.registry)
		if err != nil {
			return fmt.Errorf("create UDP input: %w", err)
		}
		p.udpInput = in
	}
	if p.cfg.WebSocket.Enabled {
		in, err := websocket.NewInput(p.cfg.WebSocket.Config, ingester, p.logger, p.registry)
		if err != nil {
			return fmt.Errorf("create WebSocket input: %w", err)
		}
		p.wsInput = in
	}

	p.monitor.Register("ingest", func() health.Status {
		s := ingester.Stats()
		if s.Invalid > 0 || s.Rejected > 0 {
			return health.NewDegraded("", fmt.Sprintf("%d invalid payloads, %d rejected records", s.Invalid, s.Rejected))
		}
		return health.NewHealthy("", fmt.Sprintf("%d records accepted", s.Accepted))
	})
	return nil
}

// attachArchive binds the object store bucket, which needs a live
// connection, and subscribes the archive sink before the reporter starts.
func (p *pipeline) attachArchive(ctx context.Context) error {
	store, err := p.nats.ObjectStore(ctx, p.cfg.Archive.BucketConfig())
	if err != nil {
		return fmt.Errorf("open archive bucket: %w", err)
	}
	out, err := archive.NewOutput(store, p.cfg.Archive.Config, p.logger)
	if err != nil {
		return fmt.Errorf("create archive output: %w", err)
	}
	if err := p.subscribe(out, p.cfg.Archive.EntryTypes); err != nil {
		return err
	}
	p.monitor.Register("sink."+out.Name(), func() health.Status {
		s := out.Stats()
		return deliveryStatus(s.Archived, s.Failed)
	})
	return nil
}

// start brings components up in dependency order: metrics, NATS and the
// sinks that need it, the reporter and finally the inputs that feed it.
func (p *pipeline) start(ctx context.Context) error {
	if p.metricsServer != nil {
		if err := p.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		p.logger.Info("metrics server started", "address", p.metricsServer.Address())
	}

	if p.nats != nil {
		if err := connectToNATS(ctx, p.nats); err != nil {
			return err
		}
	}
	if p.cfg.Archive.Enabled {
		if err := p.attachArchive(ctx); err != nil {
			return err
		}
	}

	if err := p.reporter.Start(ctx); err != nil {
		return fmt.Errorf("start reporter: %w", err)
	}

	if p.natsIngest != nil {
		if err := p.natsIngest.Start(ctx); err != nil {
			return fmt.Errorf("start NATS ingest: %w", err)
		}
		p.logger.Info("NATS ingest started", "subject", p.natsIngest.Subject())
	}
	if p.udpInput != nil {
		if err := p.udpInput.Start(ctx); err != nil {
			return fmt.Errorf("start UDP input: %w", err)
		}
		p.logger.Info("UDP input started", "addr", p.udpInput.Addr().String())
	}
	if p.wsInput != nil {
		if err := p.wsInput.Start(ctx); err != nil {
			return fmt.Errorf("start WebSocket input: %w", err)
		}
		p.logger.Info("WebSocket input started", "addr", p.wsInput.Addr().String())
	}
	return nil
}

// shutdown stops inputs first so nothing new is recorded, then stops the
// reporter, which flushes what is left to the sinks, then closes the sinks
// and the connections underneath them.
func (p *pipeline) shutdown(timeout time.Duration) error {
	var errs []error

	if p.udpInput != nil {
		if err := p.udpInput.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop UDP input: %w", err))
		}
	}
	if p.wsInput != nil {
		if err := p.wsInput.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop WebSocket input: %w", err))
		}
	}
	if p.natsIngest != nil {
		if err := p.natsIngest.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop NATS ingest: %w", err))
		}
	}

	if err := p.reporter.Stop(timeout); err != nil {
		errs = append(errs, fmt.Errorf("stop reporter: %w", err))
	}

	if err := p.close(); err != nil {
		errs = append(errs, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if p.nats != nil {
		if err := p.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if p.metricsServer != nil {
		if err := p.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

// close detaches the sinks and releases the file sink.
func (p *pipeline) close() error {
	for _, unsubscribe := range p.unsubscribe {
		unsubscribe()
	}
	p.unsubscribe = nil

	if p.fileSink != nil {
		if err := p.fileSink.Close(); err != nil {
			return fmt.Errorf("close file output: %w", err)
		}
	}
	return nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready.
func connectToNATS(ctx context.Context, client *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return errors.WrapTransient(err, "pipeline", "connectToNATS", "wait for connection")
	}
	return nil
}

// reporterProbe reports the reporter degraded once any buffer has dropped an
// entry that no sink ever saw.
func reporterProbe(r *performance.Reporter) health.Probe {
	return func() health.Status {
		var adds, drops int64
		for _, s := range r.BufferStats() {
			adds += s.Adds
			drops += s.Drops
		}
		status := health.NewHealthy("", fmt.Sprintf("%d entries recorded", adds))
		if drops > 0 {
			status = health.NewDegraded("", fmt.Sprintf("%d of %d entries dropped before delivery", drops, adds))
		}
		return status.WithMetrics(&health.Metrics{
			ErrorCount:        int(drops),
			MessagesProcessed: adds,
		})
	}
}

// deliveryStatus grades a sink by its delivery counters: unhealthy when it
// has never delivered but has failed, degraded when some deliveries failed.
func deliveryStatus(delivered, failed int64) health.Status {
	var status health.Status
	switch {
	case failed > 0 && delivered == 0:
		status = health.NewUnhealthy("", fmt.Sprintf("%d deliveries failed, none succeeded", failed))
	case failed > 0:
		status = health.NewDegraded("", fmt.Sprintf("%d deliveries failed", failed))
	default:
		status = health.NewHealthy("", "ok")
	}
	return status.WithMetrics(&health.Metrics{
		ErrorCount:        int(failed),
		MessagesProcessed: delivered,
	})
}
