// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors shared by every hub built with
// WithMetrics. Each hub reports under its own "hub" label.
type Metrics struct {
	enqueuedTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
}

// NewMetrics creates the hub collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unfezant",
			Subsystem: "hub",
			Name:      "enqueued_total",
			Help:      "Items accepted into a hub.",
		}, []string{"hub"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unfezant",
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Items discarded by a hub's overflow policy.",
		}, []string{"hub"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "unfezant",
			Subsystem: "hub",
			Name:      "depth",
			Help:      "Items currently queued in a hub.",
		}, []string{"hub"}),
	}
	for _, c := range []prometheus.Collector{m.enqueuedTotal, m.droppedTotal, m.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) enqueued(hub string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(hub).Inc()
}

func (m *Metrics) dropped(hub string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(hub).Inc()
}

func (m *Metrics) depth(hub string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(hub).Set(float64(n))
}
