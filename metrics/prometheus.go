// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Gauge ...
	Gauge instrument = iota
	// Counter ...
	Counter
	// Histogram ...
	Histogram
	// Summary ...
	Summary
)

var (
	// ErrInstrumentNotSupported signals the specified instrument is not yet supported
	ErrInstrumentNotSupported = errors.New("instrument type unsupported")
	// ErrInstrumentTypeMismatch signal the type of the instrument is not expected
	ErrInstrumentTypeMismatch = errors.New("instrument is not of the expected type")
)

var (
	orderCounter             *prometheus.CounterVec
	orderRejectionCounter    *prometheus.CounterVec
	orderGauge               *prometheus.GaugeVec
	tradeCounter             *prometheus.CounterVec
	tradeSettlementCounter   *prometheus.CounterVec
	bookVolumeGauge          *prometheus.GaugeVec
	settlementQueueGauge     prometheus.Gauge
	monitorStateGauge        prometheus.Gauge
	checkpointHeightGauge    prometheus.Gauge
	checkpointStalenessGauge prometheus.Gauge
	chainEventCounter        *prometheus.CounterVec
	admissionRejectCounter   prometheus.Counter
	engineTime               *prometheus.CounterVec
)

// abstract prometheus types
type instrument int

// combine all possible prometheus options + way to differentiate between regular or vector type
type instrumentOpts struct {
	opts               prometheus.Opts
	buckets            []float64
	objectives         map[float64]float64
	maxAge             time.Duration
	ageBuckets, bufCap uint32
	vectors            []string
}

type mi struct {
	gaugeV     *prometheus.GaugeVec
	gauge      prometheus.Gauge
	counterV   *prometheus.CounterVec
	counter    prometheus.Counter
	histogramV *prometheus.HistogramVec
	histogram  prometheus.Histogram
	summaryV   *prometheus.SummaryVec
	summary    prometheus.Summary
}

// MetricInstrument - template interface for mi type return value - only mock if needed, and only mock the funcs you use
type MetricInstrument interface {
	Gauge() (prometheus.Gauge, error)
	GaugeVec() (*prometheus.GaugeVec, error)
	Counter() (prometheus.Counter, error)
	CounterVec() (*prometheus.CounterVec, error)
	Histogram() (prometheus.Histogram, error)
	HistogramVec() (*prometheus.HistogramVec, error)
	Summary() (prometheus.Summary, error)
	SummaryVec() (*prometheus.SummaryVec, error)
}

// InstrumentOption - vararg for instrument options setting
type InstrumentOption func(o *instrumentOpts)

// Vectors - configuration used to create a vector of a given interface, slice of label names
func Vectors(labels ...string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.vectors = labels
	}
}

// Help - set the help field on instrument
func Help(help string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.opts.Help = help
	}
}

// Namespace - set namespace
func Namespace(ns string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.opts.Namespace = ns
	}
}

// Subsystem - set subsystem... obviously
func Subsystem(s string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.opts.Subsystem = s
	}
}

// Labels set labels for instrument (similar to vector, but with given values)
func Labels(labels map[string]string) InstrumentOption {
	return func(o *instrumentOpts) {
		o.opts.ConstLabels = prometheus.Labels(labels)
	}
}

// Buckets - specific to histogram type
func Buckets(b []float64) InstrumentOption {
	return func(o *instrumentOpts) {
		o.buckets = b
	}
}

// Objectives - specific to summary type
func Objectives(obj map[float64]float64) InstrumentOption {
	return func(o *instrumentOpts) {
		o.objectives = obj
	}
}

// MaxAge - specific to summary type
func MaxAge(m time.Duration) InstrumentOption {
	return func(o *instrumentOpts) {
		o.maxAge = m
	}
}

// AgeBuckets - specific to summary type
func AgeBuckets(ab uint32) InstrumentOption {
	return func(o *instrumentOpts) {
		o.ageBuckets = ab
	}
}

// BufCap - specific to summary type
func BufCap(bc uint32) InstrumentOption {
	return func(o *instrumentOpts) {
		o.bufCap = bc
	}
}

// AddInstrument  configure and register new metrics instrument
// this will, over time, be moved to use custom Registries, etc...
func AddInstrument(t instrument, name string, opts ...InstrumentOption) (*mi, error) {
	var col prometheus.Collector
	ret := mi{}
	opt := instrumentOpts{
		opts: prometheus.Opts{
			Name: name,
		},
	}
	// apply options
	for _, o := range opts {
		o(&opt)
	}
	switch t {
	case Gauge:
		o := opt.gauge()
		if len(opt.vectors) == 0 {
			ret.gauge = prometheus.NewGauge(o)
			col = ret.gauge
		} else {
			ret.gaugeV = prometheus.NewGaugeVec(o, opt.vectors)
			col = ret.gaugeV
		}
	case Counter:
		o := opt.counter()
		if len(opt.vectors) == 0 {
			ret.counter = prometheus.NewCounter(o)
			col = ret.counter
		} else {
			ret.counterV = prometheus.NewCounterVec(o, opt.vectors)
			col = ret.counterV
		}
	case Histogram:
		o := opt.histogram()
		if len(opt.vectors) == 0 {
			ret.histogram = prometheus.NewHistogram(o)
			col = ret.histogram
		} else {
			ret.histogramV = prometheus.NewHistogramVec(o, opt.vectors)
			col = ret.histogramV
		}
	case Summary:
		o := opt.summary()
		if len(opt.vectors) == 0 {
			ret.summary = prometheus.NewSummary(o)
			col = ret.summary
		} else {
			ret.summaryV = prometheus.NewSummaryVec(o, opt.vectors)
			col = ret.summaryV
		}
	default:
		return nil, ErrInstrumentNotSupported
	}
	if err := prometheus.Register(col); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Start enable metrics and the health endpoint (given config). The health
// function is polled on every request to /health.
func Start(conf Config, health func() Health) error {
	if !bool(conf.Enabled) {
		return nil
	}
	if err := setupMetrics(); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(conf.Path, promhttp.Handler())
	mux.Handle("/health", healthHandler(health))
	go func() {
		_ = http.ListenAndServe(fmt.Sprintf(":%d", conf.Port), mux)
	}()
	return nil
}

func (i instrumentOpts) gauge() prometheus.GaugeOpts {
	return prometheus.GaugeOpts(i.opts)
}

func (i instrumentOpts) counter() prometheus.CounterOpts {
	return prometheus.CounterOpts(i.opts)
}

func (i instrumentOpts) summary() prometheus.SummaryOpts {
	return prometheus.SummaryOpts{
		Name:        i.opts.Name,
		Namespace:   i.opts.Namespace,
		Subsystem:   i.opts.Subsystem,
		ConstLabels: i.opts.ConstLabels,
		Help:        i.opts.Help,
		Objectives:  i.objectives,
		MaxAge:      i.maxAge,
		AgeBuckets:  i.ageBuckets,
		BufCap:      i.bufCap,
	}
}

func (i instrumentOpts) histogram() prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Name:        i.opts.Name,
		Namespace:   i.opts.Namespace,
		Subsystem:   i.opts.Subsystem,
		ConstLabels: i.opts.ConstLabels,
		Help:        i.opts.Help,
		Buckets:     i.buckets,
	}
}

// Gauge returns a prometheus Gauge instrument
func (m mi) Gauge() (prometheus.Gauge, error) {
	if m.gauge == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.gauge, nil
}

// GaugeVec returns a prometheus GaugeVec instrument
func (m mi) GaugeVec() (*prometheus.GaugeVec, error) {
	if m.gaugeV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.gaugeV, nil
}

// Counter returns a prometheus Counter instrument
func (m mi) Counter() (prometheus.Counter, error) {
	if m.counter == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.counter, nil
}

// CounterVec returns a prometheus CounterVec instrument
func (m mi) CounterVec() (*prometheus.CounterVec, error) {
	if m.counterV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.counterV, nil
}

func (m mi) Histogram() (prometheus.Histogram, error) {
	if m.histogram == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.histogram, nil
}

func (m mi) HistogramVec() (*prometheus.HistogramVec, error) {
	if m.histogramV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.histogramV, nil
}

func (m mi) Summary() (prometheus.Summary, error) {
	if m.summary == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.summary, nil
}

func (m mi) SummaryVec() (*prometheus.SummaryVec, error) {
	if m.summaryV == nil {
		return nil, ErrInstrumentTypeMismatch
	}
	return m.summaryV, nil
}

func setupMetrics() error {
	h, err := AddInstrument(
		Counter,
		"engine_seconds_total",
		Namespace("polaris"),
		Vectors("market", "engine", "fn"),
	)
	if err != nil {
		return err
	}
	est, err := h.CounterVec()
	if err != nil {
		return err
	}
	engineTime = est

	h, err = AddInstrument(
		Counter,
		"orders_total",
		Namespace("polaris"),
		Vectors("market", "result"),
		Help("Number of orders processed"),
	)
	if err != nil {
		return err
	}
	ot, err := h.CounterVec()
	if err != nil {
		return err
	}
	orderCounter = ot

	h, err = AddInstrument(
		Counter,
		"orders_rejected_total",
		Namespace("polaris"),
		Vectors("market", "reason"),
		Help("Number of orders rejected, by reason"),
	)
	if err != nil {
		return err
	}
	orc, err := h.CounterVec()
	if err != nil {
		return err
	}
	orderRejectionCounter = orc

	h, err = AddInstrument(
		Gauge,
		"orders",
		Namespace("polaris"),
		Vectors("market"),
		Help("Number of orders currently resting on the book"),
	)
	if err != nil {
		return err
	}
	g, err := h.GaugeVec()
	if err != nil {
		return err
	}
	orderGauge = g

	h, err = AddInstrument(
		Counter,
		"trades_total",
		Namespace("polaris"),
		Vectors("market"),
		Help("Number of trades matched"),
	)
	if err != nil {
		return err
	}
	tc, err := h.CounterVec()
	if err != nil {
		return err
	}
	tradeCounter = tc

	h, err = AddInstrument(
		Counter,
		"trade_settlements_total",
		Namespace("polaris"),
		Vectors("market", "status"),
		Help("Trade settlement status transitions"),
	)
	if err != nil {
		return err
	}
	tsc, err := h.CounterVec()
	if err != nil {
		return err
	}
	tradeSettlementCounter = tsc

	h, err = AddInstrument(
		Gauge,
		"book_volume",
		Namespace("polaris"),
		Vectors("market", "side"),
		Help("Resting volume per side of the order book"),
	)
	if err != nil {
		return err
	}
	bv, err := h.GaugeVec()
	if err != nil {
		return err
	}
	bookVolumeGauge = bv

	h, err = AddInstrument(
		Gauge,
		"settlement_queue_depth",
		Namespace("polaris"),
		Help("Number of trades waiting in the settlement intake queue"),
	)
	if err != nil {
		return err
	}
	sq, err := h.Gauge()
	if err != nil {
		return err
	}
	settlementQueueGauge = sq

	h, err = AddInstrument(
		Gauge,
		"chain_monitor_state",
		Namespace("polaris"),
		Help("Chain event monitor connection state"),
	)
	if err != nil {
		return err
	}
	ms, err := h.Gauge()
	if err != nil {
		return err
	}
	monitorStateGauge = ms

	h, err = AddInstrument(
		Gauge,
		"chain_checkpoint_height",
		Namespace("polaris"),
		Help("Last chain block fully processed and checkpointed"),
	)
	if err != nil {
		return err
	}
	ch, err := h.Gauge()
	if err != nil {
		return err
	}
	checkpointHeightGauge = ch

	h, err = AddInstrument(
		Gauge,
		"chain_checkpoint_staleness_seconds",
		Namespace("polaris"),
		Help("Seconds between now and the timestamp of the last checkpointed block"),
	)
	if err != nil {
		return err
	}
	cs, err := h.Gauge()
	if err != nil {
		return err
	}
	checkpointStalenessGauge = cs

	h, err = AddInstrument(
		Counter,
		"chain_events_total",
		Namespace("polaris"),
		Vectors("type", "outcome"),
		Help("Chain events observed, by type and processing outcome"),
	)
	if err != nil {
		return err
	}
	cec, err := h.CounterVec()
	if err != nil {
		return err
	}
	chainEventCounter = cec

	h, err = AddInstrument(
		Counter,
		"admission_rejections_total",
		Namespace("polaris"),
		Help("Orders rejected by the admission rate limiter"),
	)
	if err != nil {
		return err
	}
	arc, err := h.Counter()
	if err != nil {
		return err
	}
	admissionRejectCounter = arc

	return nil
}

// OrderCounterInc increments the order counter
func OrderCounterInc(labelValues ...string) {
	if orderCounter == nil {
		return
	}
	orderCounter.WithLabelValues(labelValues...).Inc()
}

// OrderRejectionCounterInc increments the rejected order counter
func OrderRejectionCounterInc(market, reason string) {
	if orderRejectionCounter == nil {
		return
	}
	orderRejectionCounter.WithLabelValues(market, reason).Inc()
}

// OrderGaugeAdd increments the resting order gauge
func OrderGaugeAdd(n int, labelValues ...string) {
	if orderGauge == nil {
		return
	}
	orderGauge.WithLabelValues(labelValues...).Add(float64(n))
}

// TradeCounterAdd counts matched trades
func TradeCounterAdd(n int, market string) {
	if tradeCounter == nil {
		return
	}
	tradeCounter.WithLabelValues(market).Add(float64(n))
}

// TradeSettlementCounterInc counts a trade settlement status transition
func TradeSettlementCounterInc(market, status string) {
	if tradeSettlementCounter == nil {
		return
	}
	tradeSettlementCounter.WithLabelValues(market, status).Inc()
}

// BookVolumeGaugeSet updates the resting volume for one side of a book
func BookVolumeGaugeSet(n uint64, market, side string) {
	if bookVolumeGauge == nil {
		return
	}
	bookVolumeGauge.WithLabelValues(market, side).Set(float64(n))
}

// SettlementQueueGaugeSet updates the settlement intake queue depth
func SettlementQueueGaugeSet(n float64) {
	if settlementQueueGauge == nil {
		return
	}
	settlementQueueGauge.Set(n)
}

// MonitorStateGaugeSet updates the chain monitor state gauge
func MonitorStateGaugeSet(state int) {
	if monitorStateGauge == nil {
		return
	}
	monitorStateGauge.Set(float64(state))
}

// CheckpointHeightGaugeSet updates the checkpointed chain height
func CheckpointHeightGaugeSet(block uint64) {
	if checkpointHeightGauge == nil {
		return
	}
	checkpointHeightGauge.Set(float64(block))
}

// CheckpointStalenessGaugeSet updates the checkpoint staleness gauge
func CheckpointStalenessGaugeSet(seconds float64) {
	if checkpointStalenessGauge == nil {
		return
	}
	checkpointStalenessGauge.Set(seconds)
}

// ChainEventCounterInc counts an observed chain event
func ChainEventCounterInc(eventType, outcome string) {
	if chainEventCounter == nil {
		return
	}
	chainEventCounter.WithLabelValues(eventType, outcome).Inc()
}

// AdmissionRejectCounterInc counts a rate limited order
func AdmissionRejectCounterInc() {
	if admissionRejectCounter == nil {
		return
	}
	admissionRejectCounter.Inc()
}

// EngineTimeCounterAdd records time spent in an engine function
func EngineTimeCounterAdd(start time.Time, labelValues ...string) {
	if engineTime == nil {
		return
	}
	engineTime.WithLabelValues(labelValues...).Add(time.Since(start).Seconds())
}
