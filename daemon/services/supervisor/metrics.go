package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
)

// Prometheus gauges/counters exposed on MetricsAddr, grounded on the
// teacher's daemon/services/api/metrics.go (custom registry, promhttp
// handler mounted on demand), generalized from a fixed Unraid metric set to
// the three counters this domain's registry/session/notification triad
// produces.
var (
	knownClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_manager_known_clients",
		Help: "Number of clients currently tracked in the registry.",
	})
	sessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_manager_session_state",
		Help: "Current MqttSession state, as its numeric State value.",
	})
	notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_manager_notifications_total",
		Help: "Total notifications published to the event bus.",
	})
)

var metricsRegistry = prometheus.NewRegistry()

func init() {
	metricsRegistry.MustRegister(knownClients, sessionState, notificationsTotal)
}

// startMetricsServer mounts /metrics on addr and runs until ctx is
// cancelled. It logs and returns without blocking startup on a listen
// failure, since metrics are an optional ambient concern (spec.md's
// Non-goals exclude a persistent store or broker, not observability).
func (s *Supervisor) startMetricsServer(ctx context.Context, wg *sync.WaitGroup) {
	if s.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Supervisor: metrics endpoint listening on %s/metrics", s.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Supervisor: metrics server stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// watchRegistrySize periodically refreshes the known-clients gauge.
func (s *Supervisor) watchRegistrySize(ctx context.Context) {
	if s.cfg.IdleLoopSleep <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.IdleLoopSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			knownClients.Set(float64(s.registry.Len()))
		}
	}
}

// countNotifications subscribes to hub's notification topic purely to
// increment notificationsTotal, independent of whatever delivery the
// NotificationSink performs with the same messages.
func countNotifications(ctx context.Context, hub *domain.EventBus) {
	ch := hub.SubTopics(constants.TopicNotification)
	for {
		select {
		case <-ctx.Done():
			hub.Unsub(ch)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, ok := msg.(dto.Notification); ok {
				notificationsTotal.Inc()
			}
		}
	}
}
