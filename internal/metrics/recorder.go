// Package metrics 统计各路由的请求结果，并以 Prometheus 文本格式或 JSON 快照输出。
// 计数只用于观测，不参与任何请求决策。
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// ContentType 是 /-/metrics 响应使用的文本格式类型。
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

const (
	requestsMetric = "waypack_requests_total"
	uptimeMetric   = "waypack_uptime_seconds"
)

// Count 是一组标签对应的请求计数。
type Count struct {
	Route     string `json:"route"`
	Ecosystem string `json:"ecosystem,omitempty"`
	Outcome   string `json:"outcome"`
	Value     uint64 `json:"value"`
}

// Snapshot 是某一时刻的全部计数，按标签排序。
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	StartedAt   time.Time `json:"started_at"`
	Requests    []Count   `json:"requests"`
}

type counterKey struct {
	route     string
	ecosystem string
	outcome   string
}

// Recorder 在内存中累计请求计数，可并发调用。
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	now      func() time.Time
	requests map[counterKey]uint64
}

// NewRecorder 创建空的计数器。
func NewRecorder() *Recorder {
	return &Recorder{
		started:  time.Now().UTC(),
		now:      time.Now,
		requests: make(map[counterKey]uint64),
	}
}

// Inc 为 (route, ecosystem, outcome) 计数加一。
func (r *Recorder) Inc(route, ecosystem, outcome string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.requests[counterKey{route: route, ecosystem: ecosystem, outcome: outcome}]++
	r.mu.Unlock()
}

// Snapshot 复制当前计数。
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	counts := make([]Count, 0, len(r.requests))
	for key, value := range r.requests {
		counts = append(counts, Count{Route: key.route, Ecosystem: key.ecosystem, Outcome: key.outcome, Value: value})
	}
	r.mu.Unlock()

	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		return a.Outcome < b.Outcome
	})
	return Snapshot{
		GeneratedAt: r.now().UTC(),
		StartedAt:   r.started,
		Requests:    counts,
	}
}

// Families 将快照转换为 Prometheus metric family。
func (r *Recorder) Families() []*dto.MetricFamily {
	snap := r.Snapshot()

	requests := &dto.MetricFamily{
		Name: proto.String(requestsMetric),
		Help: proto.String("Requests handled, by route kind, ecosystem and outcome."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, c := range snap.Requests {
		requests.Metric = append(requests.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				label("ecosystem", c.Ecosystem),
				label("outcome", c.Outcome),
				label("route", c.Route),
			},
			Counter: &dto.Counter{Value: proto.Float64(float64(c.Value))},
		})
	}

	uptime := &dto.MetricFamily{
		Name: proto.String(uptimeMetric),
		Help: proto.String("Seconds since the process started."),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(snap.GeneratedAt.Sub(snap.StartedAt).Seconds())},
		}},
	}
	return []*dto.MetricFamily{requests, uptime}
}

// WriteText 以 Prometheus 文本格式输出全部指标。
func (r *Recorder) WriteText(w io.Writer) error {
	for _, mf := range r.Families() {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
