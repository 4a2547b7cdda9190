// Package metrics provides the engine's running counters, gauges, and
// averagers, registered against a prometheus.Registerer the way the
// teacher's metrics/metric.go and metrics/metrics.go do it.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/warp/utils/wrappers"
)

// Averager tracks a running average, backed by a prometheus counter (for
// the observation count) and gauge (for the running sum) when registered.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu    sync.RWMutex
	sum   float64
	count float64

	promCount prometheus.Counter
	promSum   prometheus.Gauge
}

// NewAverager returns a new Averager, registering its two backing
// prometheus collectors against reg.
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	count := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name + "_count",
		Help: "Total # of observations of " + help,
	})
	sum := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name + "_sum",
		Help: "Sum of " + help,
	})

	if err := reg.Register(count); err != nil {
		return nil, err
	}
	if err := reg.Register(sum); err != nil {
		return nil, err
	}

	return &averager{
		promCount: count,
		promSum:   sum,
	}, nil
}

// NewAveragerWithErrs returns a new Averager, accumulating any registration
// error into errs and falling back to an unregistered (in-memory-only)
// averager rather than failing construction outright — the teacher's
// pattern (metrics/metric.go) for metrics that must never block startup.
func NewAveragerWithErrs(name, help string, reg prometheus.Registerer, errs *wrappers.Errs) Averager {
	a, err := NewAverager(name, help, reg)
	if err != nil {
		if errs != nil {
			errs.Add(err)
		}
		return &averager{}
	}
	return a
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sum += value
	a.count++

	if a.promCount != nil {
		a.promCount.Inc()
	}
	if a.promSum != nil {
		a.promSum.Add(value)
	}
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}

// Counter tracks a monotonic count, mirrored into a prometheus.Counter.
type Counter interface {
	Inc()
	Add(delta int64)
	Read() int64
}

type counter struct {
	mu    sync.RWMutex
	value int64
	prom  prometheus.Counter
}

func newCounter(prom prometheus.Counter) Counter {
	return &counter{prom: prom}
}

func (c *counter) Inc() { c.Add(1) }

func (c *counter) Add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	if c.prom != nil && delta > 0 {
		c.prom.Add(float64(delta))
	}
}

func (c *counter) Read() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Gauge tracks a value that can go up or down, mirrored into a
// prometheus.Gauge.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
	Read() float64
}

type gauge struct {
	mu    sync.RWMutex
	value float64
	prom  prometheus.Gauge
}

func newGauge(prom prometheus.Gauge) Gauge {
	return &gauge{prom: prom}
}

func (g *gauge) Set(value float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = value
	if g.prom != nil {
		g.prom.Set(value)
	}
}

func (g *gauge) Add(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += delta
	if g.prom != nil {
		g.prom.Add(delta)
	}
}

func (g *gauge) Read() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Registry is a named collection of counters, gauges, and averagers,
// registered against one prometheus.Registerer.
type Registry interface {
	NewCounter(name, help string) (Counter, error)
	NewGauge(name, help string) (Gauge, error)
	NewAverager(name, help string) (Averager, error)
	GetCounter(name string) (Counter, error)
	GetGauge(name string) (Gauge, error)
	GetAverager(name string) (Averager, error)
}

type registry struct {
	mu        sync.RWMutex
	reg       prometheus.Registerer
	counters  map[string]Counter
	gauges    map[string]Gauge
	averagers map[string]Averager
}

// NewRegistry returns a new Registry backed by reg.
func NewRegistry(reg prometheus.Registerer) Registry {
	return &registry{
		reg:       reg,
		counters:  make(map[string]Counter),
		gauges:    make(map[string]Gauge),
		averagers: make(map[string]Averager),
	}
}

func (r *registry) NewCounter(name, help string) (Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prom := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := r.reg.Register(prom); err != nil {
		return nil, err
	}
	c := newCounter(prom)
	r.counters[name] = c
	return c, nil
}

func (r *registry) NewGauge(name, help string) (Gauge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prom := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := r.reg.Register(prom); err != nil {
		return nil, err
	}
	g := newGauge(prom)
	r.gauges[name] = g
	return g, nil
}

func (r *registry) NewAverager(name, help string) (Averager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := NewAverager(name, help, r.reg)
	if err != nil {
		return nil, err
	}
	r.averagers[name] = a
	return a, nil
}

func (r *registry) GetCounter(name string) (Counter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.counters[name]
	if !ok {
		return nil, fmt.Errorf("counter %q not found", name)
	}
	return c, nil
}

func (r *registry) GetGauge(name string) (Gauge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gauges[name]
	if !ok {
		return nil, fmt.Errorf("gauge %q not found", name)
	}
	return g, nil
}

func (r *registry) GetAverager(name string) (Averager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.averagers[name]
	if !ok {
		return nil, fmt.Errorf("averager %q not found", name)
	}
	return a, nil
}
