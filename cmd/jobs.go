package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-reconciler/app/service"
	"github.com/vibast-solutions/ms-go-reconciler/config"
)

var (
	workerMode bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run reconciliation sync jobs",
}

var syncPaymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Apply payments received at the gateway to their orders",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sync_payments",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PaymentSyncInterval },
			func(s *service.ReconcileService, ctx context.Context) error {
				return s.RunPaymentSyncBatch(ctx)
			},
		)
	},
}

var syncOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Push completed and canceled orders out as settles and refunds",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sync_orders",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.OrderSyncInterval },
			func(s *service.ReconcileService, ctx context.Context) error {
				return s.RunOrderSyncBatch(ctx)
			},
		)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run transient failures recorded by the sync jobs",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"retry",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RetryInterval },
			func(s *service.ReconcileService, ctx context.Context) error {
				return s.RunRetryBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(retryCmd)
	syncCmd.AddCommand(syncPaymentsCmd)
	syncCmd.AddCommand(syncOrdersCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.ReconcileService, ctx context.Context) error,
) {
	cfg, services, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), services.reconcile, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(services.reconcile, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	reconcileService *service.ReconcileService,
	fn func(s *service.ReconcileService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(reconcileService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(reconcileService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
