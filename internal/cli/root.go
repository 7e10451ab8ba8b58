// Package cli wires the worker's Config (spec.md §6) from flags, an
// optional config file, and environment variables, then constructs and
// runs a Runner — the cobra+viper entrypoint pattern.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/nimbusload/swarmworker/internal/config"
)

var cfgFile string

// flag-backed fields, overlaid onto config.Default() in buildConfig.
var (
	masterHost string
	masterPort int
	maxRps     float64

	rateLimiterKind    string
	stableMaxThreshold int64
	stablePeriodMs     int64
	rampUpMaxThreshold int64
	rampUpStep         int64
	rampUpPeriodMs      int64
	rampUpRefillMs      int64

	recvTimeoutMs       int64
	heartbeatIntervalMs int64
	reportIntervalMs    int64
	masterMissingMs     int64

	metricsAddr string
	logLevel    string

	taskURL    string
	taskWeight int
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "swarmworker is a distributed load-generation worker",
	Long: `swarmworker registers with a master over a ZeroMQ control
channel, spawns a population of UserWorkers on command, and reports
aggregated request statistics back on a fixed interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

// Execute runs the root command; the process entrypoint's only job is to
// surface a non-nil error as a non-zero exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file path (yaml); defaults also read from SWARMWORKER_* env vars")

	flags.StringVar(&masterHost, "master-host", "", "master hostname or IP (required)")
	flags.IntVar(&masterPort, "master-port", 5557, "master RPC port")
	flags.Float64Var(&maxRps, "max-rps", 0, "aggregate requests/sec; with --rate-limiter none, builds a stable limiter of this size per second; 0 means unbounded")

	flags.StringVar(&rateLimiterKind, "rate-limiter", "none", `rate limiter variant: "none", "stable", or "rampUp"`)
	flags.Int64Var(&stableMaxThreshold, "stable-max-threshold", 0, "stable limiter: tokens per refill period")
	flags.Int64Var(&stablePeriodMs, "stable-period-ms", 1000, "stable limiter: refill period")
	flags.Int64Var(&rampUpMaxThreshold, "rampup-max-threshold", 0, "rampUp limiter: ceiling token count")
	flags.Int64Var(&rampUpStep, "rampup-step", 1, "rampUp limiter: ceiling growth per rampup period")
	flags.Int64Var(&rampUpPeriodMs, "rampup-period-ms", 1000, "rampUp limiter: ceiling growth period")
	flags.Int64Var(&rampUpRefillMs, "rampup-refill-ms", 1000, "rampUp limiter: bucket refill period")

	flags.Int64Var(&recvTimeoutMs, "recv-timeout-ms", 300, "bounded transport receive timeout")
	flags.Int64Var(&heartbeatIntervalMs, "heartbeat-interval-ms", 1000, "heartbeat send cadence")
	flags.Int64Var(&reportIntervalMs, "report-interval-ms", 3000, "stats snapshot cadence")
	flags.Int64Var(&masterMissingMs, "master-missing-ms", 60000, "silence duration before transitioning to missing")

	flags.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on; empty disables it")
	flags.StringVar(&logLevel, "log-level", "info", "zap log level: debug, info, warn, error")

	flags.StringVar(&taskURL, "task-url", "", "GET target for the bundled demonstration task")
	flags.IntVar(&taskWeight, "task-weight", 1, "weight of the bundled demonstration task")

	_ = viper.BindPFlags(flags)
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "swarmworker: reading config file %s: %v\n", cfgFile, err)
		}
	}
	viper.SetEnvPrefix("swarmworker")
	viper.AutomaticEnv()
}

// buildConfig overlays viper-resolved values (flags > env > file > flag
// defaults) onto config.Default and validates the result. Validation
// failure is fatal-before-startup per spec.md §7.
func buildConfig() (*config.Config, error) {
	cfg := config.Default()

	cfg.MasterHost = viper.GetString("master-host")
	cfg.MasterPort = viper.GetInt("master-port")
	cfg.MaxRps = viper.GetFloat64("max-rps")

	cfg.RateLimiter = config.RateLimiterKind(viper.GetString("rate-limiter"))
	cfg.StableMaxThreshold = viper.GetInt64("stable-max-threshold")
	cfg.StablePeriod = msDuration(viper.GetInt64("stable-period-ms"))
	cfg.RampUpMaxThreshold = viper.GetInt64("rampup-max-threshold")
	cfg.RampUpStep = viper.GetInt64("rampup-step")
	cfg.RampUpPeriod = msDuration(viper.GetInt64("rampup-period-ms"))
	cfg.RampUpRefillPeriod = msDuration(viper.GetInt64("rampup-refill-ms"))

	cfg.RecvTimeout = msDuration(viper.GetInt64("recv-timeout-ms"))
	cfg.HeartbeatInterval = msDuration(viper.GetInt64("heartbeat-interval-ms"))
	cfg.ReportInterval = msDuration(viper.GetInt64("report-interval-ms"))
	cfg.MasterMissing = msDuration(viper.GetInt64("master-missing-ms"))

	cfg.MetricsAddr = viper.GetString("metrics-addr")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLogLevel() zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
