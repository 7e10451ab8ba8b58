package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimbusload/swarmworker/examples/httptask"
	"github.com/nimbusload/swarmworker/internal/config"
	"github.com/nimbusload/swarmworker/internal/logging"
	"github.com/nimbusload/swarmworker/internal/metrics"
	"github.com/nimbusload/swarmworker/internal/protocol"
	"github.com/nimbusload/swarmworker/internal/ratelimiter"
	"github.com/nimbusload/swarmworker/internal/runner"
	"github.com/nimbusload/swarmworker/internal/stats"
	"github.com/nimbusload/swarmworker/internal/task"
	"github.com/nimbusload/swarmworker/internal/transport"
)

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// run builds the full collaborator graph from cfg and blocks until the
// Runner exits (master quit, transport fatal error, or an interrupt).
func run(cfg *config.Config) error {
	if err := logging.SetLevel(parseLogLevel()); err != nil {
		return err
	}
	logger := logging.Logger

	ctx, cancel := rootContext(logger)
	defer cancel()

	endpoint := fmt.Sprintf("tcp://%s:%d", cfg.MasterHost, cfg.MasterPort)
	identity := runner.NewNodeID()

	sock, err := transport.DialZMQSocket(ctx, endpoint, identity)
	if err != nil {
		return err
	}
	codec := protocol.NewMsgpackCodec()
	tr := transport.New(sock, codec)

	agg := stats.New(logger)
	agg.SetReportInterval(cfg.ReportInterval)
	go agg.Run(ctx)

	sel := task.NewSelector(buildTasks(agg), time.Now().UnixNano())

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		reg = metrics.New(prometheus.DefaultRegisterer)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorw("metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	opts := []runner.Option{
		runner.NodeID(identity),
		runner.Logger(logger),
		runner.RecvTimeout(cfg.RecvTimeout),
		runner.HeartbeatInterval(cfg.HeartbeatInterval),
		runner.MasterMissing(cfg.MasterMissing),
	}
	if reg != nil {
		opts = append(opts, runner.Metrics(reg))
	}
	if factory := limiterFactory(cfg); factory != nil {
		opts = append(opts, runner.RateLimiterFactory(factory))
	}

	r := runner.New(tr, codec, agg, sel, opts...)
	return r.Run(ctx)
}

// limiterFactory builds a fresh RateLimiter constructor for cfg's
// configured variant, or nil if none is configured. A bare --max-rps with
// no explicit rateLimiter variant derives a Stable limiter from it
// (spec.md §6: "maxRps (aggregate, drives rate-limiter configuration)").
func limiterFactory(cfg *config.Config) func() ratelimiter.RateLimiter {
	switch cfg.RateLimiter {
	case config.RateLimiterStable:
		return func() ratelimiter.RateLimiter {
			return ratelimiter.NewStable(cfg.StableMaxThreshold, cfg.StablePeriod)
		}
	case config.RateLimiterRampUp:
		return func() ratelimiter.RateLimiter {
			return ratelimiter.NewRampUp(cfg.RampUpMaxThreshold, cfg.RampUpStep, cfg.RampUpPeriod, cfg.RampUpRefillPeriod)
		}
	default:
		if cfg.MaxRps > 0 {
			return func() ratelimiter.RateLimiter {
				return ratelimiter.NewStable(int64(cfg.MaxRps), time.Second)
			}
		}
		return nil
	}
}

// buildTasks assembles the TaskSelector's registered tasks. The bundled
// httptask demonstration task is included only when --task-url is set;
// a real deployment registers its own task package here instead.
func buildTasks(agg *stats.Aggregator) []task.Task {
	if taskURL == "" {
		return []task.Task{{
			Weight: 1,
			Name:   "noop",
			Fn:     func() error { return nil },
		}}
	}

	client := &http.Client{
		Transport: httptask.NewTransport(1024),
		Timeout:   30 * time.Second,
	}
	return []task.Task{httptask.GetTask(client, agg, "demo_get", taskURL, taskWeight)}
}
