package health

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// PromQL templates per pool over the Go collector metrics of the watched
// process. Every %[1]s is replaced by the label selector.
var poolQueries = map[string]string{
	PoolHeap:     "go_memstats_heap_alloc_bytes%[1]s",
	PoolStack:    "go_memstats_stack_inuse_bytes%[1]s",
	PoolMetadata: "go_memstats_mspan_sys_bytes%[1]s + go_memstats_mcache_sys_bytes%[1]s + go_memstats_gc_sys_bytes%[1]s",
	PoolTotal:    "go_memstats_sys_bytes%[1]s - go_memstats_heap_released_bytes%[1]s",
}

const limitQuery = "go_gc_gomemlimit_bytes%[1]s"

// PrometheusOptions configures a PrometheusSource.
type PrometheusOptions struct {
	Address string
	// Selector narrows the queried series, e.g. {job="checkout"}.
	Selector string
	// Timeout of each query. Defaults to 3s.
	Timeout time.Duration

	Clock  clock.PassiveClock
	Logger *zap.Logger
}

// PrometheusSource reads the pools of a remote Go process from Prometheus.
type PrometheusSource struct {
	Client v1.API // The Prometheus V1 API client

	selector string
	timeout  time.Duration
	clock    clock.PassiveClock
	logger   *zap.Logger
}

// NewPrometheusSource initializes the Prometheus client connection.
func NewPrometheusSource(opts PrometheusOptions) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: opts.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Prometheus client: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &PrometheusSource{
		Client:   v1.NewAPI(client),
		selector: strings.TrimSpace(opts.Selector),
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("prometheus-source"),
	}, nil
}

// Sample implements Source with two instant queries: the pool usage and the
// memory limit of the process.
func (p *PrometheusSource) Sample(ctx context.Context, pool string) (Usage, error) {
	query, ok := poolQueries[pool]
	if !ok {
		return Usage{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := p.clock.Now()

	used, ok, err := p.queryAndExtract(ctx, fmt.Sprintf(query, p.selector), now)
	if err != nil {
		return Usage{}, err
	}
	if !ok {
		return Usage{}, fmt.Errorf("prometheus returned no data for memory pool '%s'", pool)
	}

	// A missing or unset limit leaves the maximum undefined.
	limit, _, err := p.queryAndExtract(ctx, fmt.Sprintf(limitQuery, p.selector), now)
	if err != nil {
		return Usage{}, err
	}
	var maxBytes int64
	if limit > 0 && limit < math.MaxInt64 {
		maxBytes = int64(limit)
	}

	return Usage{Pool: pool, Used: int64(used), Max: maxBytes, Time: now}, nil
}

// queryAndExtract executes query and retrieves the first sample of the vector.
func (p *PrometheusSource) queryAndExtract(ctx context.Context, query string, at time.Time) (float64, bool, error) {
	result, warnings, err := p.Client.Query(ctx, query, at)
	if err != nil {
		return 0, false, fmt.Errorf("prometheus query error for %s: %w", query, err)
	}
	if len(warnings) > 0 {
		p.logger.Warn("Prometheus query returned warnings",
			zap.String("query", query), zap.Strings("warnings", warnings))
	}

	if v, ok := result.(model.Vector); ok && len(v) > 0 {
		return float64(v[0].Value), true, nil
	}
	return 0, false, nil
}
