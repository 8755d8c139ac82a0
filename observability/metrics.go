// Package observability exposes chat activity as Prometheus metrics.
package observability

import (
	"chat-room/contract"
	"chat-room/domain/event"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is an event sink counting what the session controller reports.
type Metrics struct {
	registry *prometheus.Registry

	received  prometheus.Counter
	published prometheus.Counter
	dropped   prometheus.Counter
	statuses  *prometheus.CounterVec
	online    prometheus.Gauge
	signedIn  prometheus.Gauge
}

var _ contract.EventSink = (*Metrics)(nil)

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry:  registry,
		received:  factory.NewCounter(prometheus.CounterOpts{Name: "chat_messages_received_total", Help: "Messages delivered by the channel"}),
		published: factory.NewCounter(prometheus.CounterOpts{Name: "chat_messages_published_total", Help: "Messages handed to the channel"}),
		dropped:   factory.NewCounter(prometheus.CounterOpts{Name: "chat_messages_dropped_total", Help: "Messages that never reached the channel"}),
		statuses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_channel_status_total",
			Help: "Channel subscription status reports",
		}, []string{"status"}),
		online:   factory.NewGauge(prometheus.GaugeOpts{Name: "chat_presence_online", Help: "Presence keys currently online"}),
		signedIn: factory.NewGauge(prometheus.GaugeOpts{Name: "chat_session_signed_in", Help: "1 while a session is active"}),
	}
}

func (m *Metrics) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		m.received.Inc()
	case event.MessagePublished:
		m.published.Inc()
	case event.MessageDropped:
		m.dropped.Inc()
	case event.ChannelStatusChanged:
		m.statuses.WithLabelValues(string(evt.Status)).Inc()
	case event.PresenceSynced:
		m.online.Set(float64(evt.Online.Len()))
	case event.SessionChanged:
		if evt.Session != nil {
			m.signedIn.Set(1)
		} else {
			m.signedIn.Set(0)
		}
	case event.ConversationCleared:
		m.online.Set(0)
	}
	return nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, log *slog.Logger, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics endpoint started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
