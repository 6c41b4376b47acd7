package dtmfin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 检测链路的 Prometheus 指标。
// 热路径上只调用预先解析好的 Counter，不做 label 查找，不分配内存。
// nil *Metrics 的所有方法都是空操作。
type Metrics struct {
	blocksDecoded     prometheus.Counter
	decodeFailures    prometheus.Counter
	symbolsAccepted   [len(Alphabet)]prometheus.Counter
	eventsPosted      prometheus.Counter
	eventsDelivered   prometheus.Counter
	eventsOverwritten prometheus.Counter
	callbackFailures  prometheus.Counter
	sessionsOpened    prometheus.Counter
	sessionActive     prometheus.Gauge
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocksDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_blocks_decoded_total",
			Help: "Total number of fixed-size audio blocks passed to the decoder",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_decode_failures_total",
			Help: "Decoder failures absorbed as no-symbol",
		}),
		eventsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_events_posted_total",
			Help: "Detection events posted to the mailbox by the audio callback",
		}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_events_delivered_total",
			Help: "Detection events handed to the consumer callback",
		}),
		eventsOverwritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_events_overwritten_total",
			Help: "Undelivered events replaced by a newer one",
		}),
		callbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_callback_failures_total",
			Help: "Consumer callback errors and panics",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtmfin_sessions_opened_total",
			Help: "Sessions successfully opened",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dtmfin_session_active",
			Help: "1 while a session is open",
		}),
	}

	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtmfin_symbols_accepted_total",
		Help: "Detections accepted by the debouncer, per key",
	}, []string{"symbol"})
	for i := 0; i < len(Alphabet); i++ {
		m.symbolsAccepted[i] = accepted.WithLabelValues(Alphabet[i : i+1])
	}

	collectors := []prometheus.Collector{
		m.blocksDecoded, m.decodeFailures, accepted,
		m.eventsPosted, m.eventsDelivered, m.eventsOverwritten,
		m.callbackFailures, m.sessionsOpened, m.sessionActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) blockDecoded() {
	if m != nil {
		m.blocksDecoded.Inc()
	}
}

func (m *Metrics) decodeFailed() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) symbolAccepted(s Symbol) {
	if m == nil {
		return
	}
	if i := symbolIndex(s); i >= 0 {
		m.symbolsAccepted[i].Inc()
	}
}

func (m *Metrics) eventPosted(overwrote bool) {
	if m == nil {
		return
	}
	m.eventsPosted.Inc()
	if overwrote {
		m.eventsOverwritten.Inc()
	}
}

func (m *Metrics) eventDelivered(failed bool) {
	if m == nil {
		return
	}
	m.eventsDelivered.Inc()
	if failed {
		m.callbackFailures.Inc()
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessionsOpened.Inc()
		m.sessionActive.Set(1)
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessionActive.Set(0)
	}
}
