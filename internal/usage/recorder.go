package usage

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/picklechips/salary-estimate/internal/bus"
	"github.com/picklechips/salary-estimate/internal/estimate"
	"github.com/picklechips/salary-estimate/internal/metrics"
)

// Recorder aggregates per-request stream statistics published on the bus and
// logs a summary when each estimation finishes. State lives only for the
// duration of a stream.
type Recorder struct {
	collector *metrics.Collector

	mu     sync.Mutex
	active map[string]*streamStats
}

type streamStats struct {
	fragments int
	bytes     int
	text      strings.Builder
}

func NewRecorder(collector *metrics.Collector) *Recorder {
	return &Recorder{
		collector: collector,
		active:    make(map[string]*streamStats),
	}
}

// Subscribe attaches the recorder to every estimation subject on the bus.
func (r *Recorder) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(bus.WildcardSubject, r.handle)
}

func (r *Recorder) handle(msg *nats.Msg) {
	id := bus.RequestID(msg.Subject)
	if bus.IsDone(msg.Subject) {
		r.finish(id, msg.Data)
		return
	}
	r.record(id, msg.Data)
}

func (r *Recorder) record(id string, fragment []byte) {
	r.mu.Lock()
	st := r.active[id]
	if st == nil {
		st = &streamStats{}
		r.active[id] = st
	}
	st.fragments++
	st.bytes += len(fragment)
	st.text.Write(fragment)
	r.mu.Unlock()
}

func (r *Recorder) finish(id string, payload []byte) {
	r.mu.Lock()
	st := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()

	if st == nil {
		st = &streamStats{}
	}

	var done bus.Done
	if err := json.Unmarshal(payload, &done); err != nil {
		log.Warn().Err(err).Str("request_id", id).Msg("unreadable done marker")
	}

	var elapsed time.Duration
	if done.StartedAt > 0 {
		elapsed = time.Since(time.Unix(0, done.StartedAt))
		r.collector.ObserveStreamDuration(elapsed)
	}

	est := estimate.Parse(st.text.String())
	log.Info().
		Str("request_id", id).
		Int("fragments", st.fragments).
		Int("bytes", st.bytes).
		Bool("failed", done.Failed).
		Bool("complete", est.Complete()).
		Str("confidence", est.ConfidenceLevel).
		Dur("duration", elapsed).
		Msg("estimate stream accounted")
}

// Snapshot returns the live counters for one in-flight request.
func (r *Recorder) Snapshot(id string) (fragments, bytes int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.active[id]
	if st == nil {
		return 0, 0, false
	}
	return st.fragments, st.bytes, true
}

// InFlight returns the number of streams currently being tracked.
func (r *Recorder) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
