package telemetry

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
)

const (
	namespaceRoot = "relayer"
)

var (
	BacklogSizeGauge             *Int64SyncGauge
	BacklogOldestTimestampGauge  *Int64SyncGauge
	TrustedHeightGauge           *Int64SyncGauge
	PacketsRelayedCounter        api.Int64Counter
	SubmissionFailuresCounter    api.Int64Counter
	LightClientUpdatesCounter    api.Int64Counter
	EventStreamReconnectsCounter api.Int64Counter
	DroppedEventsCounter         api.Int64Counter

	meter = otel.Meter(name)

	initOnce sync.Once
	initErr  error
)

// InitializeMetrics creates the instruments of the relayer. It is safe to call more than once.
// The instruments report to the global MeterProvider, so SetupOTelSDK may be called before or after.
func InitializeMetrics() error {
	initOnce.Do(func() {
		initErr = initializeMetrics()
	})
	return initErr
}

func initializeMetrics() error {
	var err error

	// create the instrument "relayer.backlog_size"
	name := fmt.Sprintf("%s.backlog_size", namespaceRoot)
	if BacklogSizeGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("number of packets that are tracked by a relay path and not yet resolved"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.backlog_oldest_timestamp"
	name = fmt.Sprintf("%s.backlog_oldest_timestamp", namespaceRoot)
	if BacklogOldestTimestampGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("nsec"),
		api.WithDescription("timestamp when the oldest packet in backlog was observed"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.trusted_height"
	name = fmt.Sprintf("%s.trusted_height", namespaceRoot)
	if TrustedHeightGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("revision height of the latest verified header per client"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.packets_relayed"
	name = fmt.Sprintf("%s.packets_relayed", namespaceRoot)
	if PacketsRelayedCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of packet obligations that are resolved"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.submission_failures"
	name = fmt.Sprintf("%s.submission_failures", namespaceRoot)
	if SubmissionFailuresCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of failed transaction submissions"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.light_client_updates"
	name = fmt.Sprintf("%s.light_client_updates", namespaceRoot)
	if LightClientUpdatesCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of verified light client updates"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.event_stream_reconnects"
	name = fmt.Sprintf("%s.event_stream_reconnects", namespaceRoot)
	if EventStreamReconnectsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of event stream reconnections"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.dropped_events"
	name = fmt.Sprintf("%s.dropped_events", namespaceRoot)
	if DroppedEventsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of events dropped because a relay path was saturated"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	return nil
}

func NewPrometheusExporter(addr string) (*prometheus.Exporter, error) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "metrics"))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger := log.GetLogger().WithModule("telemetry")
			logger.Fatal("Prometheus exporter server failed", err)
		}
	}()

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus Exporter: %v", err)
	}

	return exporter, nil
}
