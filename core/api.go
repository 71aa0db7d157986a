package core

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/valyala/bytebufferpool"
)

var bbpool bytebufferpool.Pool

// tapHub fans lines leaving the final stage out to websocket clients.
// Slow clients lose lines instead of slowing the pipeline down.
type tapHub struct {
	clients *xsync.Map[uint64, chan *bytebufferpool.ByteBuffer]
	nextID  atomic.Uint64
	lines   *xsync.Counter
}

func newTapHub() *tapHub {
	return &tapHub{
		clients: xsync.NewMap[uint64, chan *bytebufferpool.ByteBuffer](),
		lines:   xsync.NewCounter(),
	}
}

// publish is installed as the final stage tap.
func (h *tapHub) publish(line string) {
	h.lines.Inc()
	h.clients.Range(func(_ uint64, ch chan *bytebufferpool.ByteBuffer) bool {
		bb := bbpool.Get()
		bb.WriteString(line)
		select {
		case ch <- bb:
		default:
			bbpool.Put(bb)
		}
		return true
	})
}

func (h *tapHub) subscribe() (uint64, chan *bytebufferpool.ByteBuffer) {
	id := h.nextID.Add(1)
	ch := make(chan *bytebufferpool.ByteBuffer, 100)
	h.clients.Store(id, ch)
	return id, ch
}

// unsubscribe detaches the client and returns its buffered lines to the
// pool. The channel is left open: publish may still hold a reference.
func (h *tapHub) unsubscribe(id uint64) {
	ch, ok := h.clients.LoadAndDelete(id)
	if !ok {
		return
	}
	for {
		select {
		case bb := <-ch:
			bbpool.Put(bb)
		default:
			return
		}
	}
}

func (h *tapHub) close() {
	h.clients.Range(func(id uint64, _ chan *bytebufferpool.ByteBuffer) bool {
		h.unsubscribe(id)
		return true
	})
}

// runAPI starts the HTTP API in background.
func (b *Analyzer) runAPI(addr string) {
	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	r.Get("/stages", b.handleStages)
	r.Get("/tap", b.handleTap)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		b.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.Error().Err(err).Msg("HTTP API error")
		}
	}()
	go func() {
		<-b.Ctx.Done()
		srv.Close()
	}()
}

// handleStages writes a JSON description of the pipeline.
func (b *Analyzer) handleStages(w http.ResponseWriter, _ *http.Request) {
	type stageInfo struct {
		Index    int    `json:"index"`
		Name     string `json:"name"`
		Descr    string `json:"descr"`
		QueueLen int    `json:"queue_len"`
		QueueCap int    `json:"queue_cap"`
	}

	list := make([]stageInfo, 0, len(b.Stages))
	for _, s := range b.Stages {
		list = append(list, stageInfo{
			Index:    s.Index,
			Name:     s.Name,
			Descr:    s.Options.Descr,
			QueueLen: s.queue.Len(),
			QueueCap: s.queue.Cap(),
		})
	}

	out := struct {
		Fed    int64       `json:"lines_fed"`
		Tapped int64       `json:"lines_tapped"`
		Stages []stageInfo `json:"stages"`
	}{
		Fed:    b.nFed.Value(),
		Tapped: b.tapHub.lines.Value(),
		Stages: list,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleTap streams final-stage output lines over a websocket.
func (b *Analyzer) handleTap(w http.ResponseWriter, r *http.Request) {
	upgrader := &websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	id, ch := b.tapHub.subscribe()
	defer b.tapHub.unsubscribe(id)
	defer conn.Close()
	b.Debug().Uint64("client", id).Msg("tap client connected")

	for {
		select {
		case bb := <-ch:
			err := conn.WriteMessage(websocket.TextMessage, bb.B)
			bbpool.Put(bb)
			if err != nil {
				return
			}
		case <-b.Ctx.Done():
			return
		}
	}
}
