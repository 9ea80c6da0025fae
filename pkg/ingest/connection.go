// Package ingest adapts a single TCP connection speaking the wire
// protocol to a Sequencer's Writer: it drives a wireproto.Parser across
// arbitrary read boundaries, retries a Busy add through pkg/ingestretry,
// and hands any checkpoint the add triggers off to a Drainer rather than
// blocking the connection on the Merge Engine.
package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/akumuli/sequencer/pkg/ingestretry"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
	"github.com/akumuli/sequencer/pkg/telemetry"
	"github.com/akumuli/sequencer/pkg/wireproto"
)

const readBufferSize = 64 * 1024

// BulkHandler receives a connection's bulk string payloads once
// compressed (when large enough to benefit), for forwarding to the
// downstream page. A Handler built without one simply counts the bytes.
type BulkHandler func(payload []byte, compressed bool)

// Handler owns the pieces every ingest connection shares: the single
// Writer capability a Sequencer ever issues, and the Drainer that merges
// any checkpoint a write triggers. addMu serializes Add across
// connections; the Sequencer's own single-writer invariant assumes one
// caller drives the Writer at a time, and this module's ingest surface
// accepts many concurrent sockets rather than one.
type Handler struct {
	seq     *sequencer.Sequencer
	writer  *sequencer.Writer
	page    page.Handle
	policy  ingestretry.Policy
	stats   stats.Collector
	logger  logging.Logger
	tel     telemetry.Telemetry
	drainer *Drainer
	onBulk  BulkHandler
	addMu   sync.Mutex
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithPolicy overrides the default retry policy applied to a Busy add.
func WithPolicy(p ingestretry.Policy) Option {
	return func(h *Handler) { h.policy = p }
}

// WithStats attaches a statistics collector.
func WithStats(c stats.Collector) Option {
	return func(h *Handler) { h.stats = c }
}

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithTelemetry attaches a telemetry sink.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(h *Handler) { h.tel = t }
}

// WithBulkHandler registers a callback for every bulk string payload a
// connection parses, after the optional compression pass. Without one,
// bulk payloads are only counted, not forwarded anywhere.
func WithBulkHandler(bh BulkHandler) Option {
	return func(h *Handler) { h.onBulk = bh }
}

// NewHandler builds a Handler bound to a single Sequencer's Writer.
func NewHandler(seq *sequencer.Sequencer, w *sequencer.Writer, ph page.Handle, drainer *Drainer, opts ...Option) *Handler {
	h := &Handler{
		seq:     seq,
		writer:  w,
		page:    ph,
		policy:  ingestretry.DefaultPolicy(),
		logger:  logging.Default(),
		tel:     telemetry.NewNoop(),
		drainer: drainer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve reads from conn until it closes or a protocol-fatal error occurs,
// feeding every complete record to the bound Writer.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	rc := &recordConsumer{h: h, ctx: ctx}
	parser := wireproto.NewParser(rc,
		wireproto.WithStats(h.stats),
		wireproto.WithLogger(h.logger),
		wireproto.WithTelemetry(h.tel),
	)

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			status := parser.ParseNext(wireproto.PDU{Buffer: buf[:n]})
			if status != model.StatusSuccess {
				h.logger.Warn("ingest: connection closed on parse error, page=%s remote=%s status=%s", h.page.ID(), conn.RemoteAddr(), status)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("ingest: connection read error, remote=%s error=%v", conn.RemoteAddr(), err)
			}
			if status := parser.Close(); status != model.StatusSuccess {
				h.logger.Warn("ingest: truncated input at connection close, remote=%s", conn.RemoteAddr())
			}
			return
		}
	}
}

// recordConsumer implements cursor.Consumer, translating each parsed
// record into a retried Writer.Add and each bulk string into an
// optionally-compressed payload handed to the Handler's BulkHandler.
type recordConsumer struct {
	h   *Handler
	ctx context.Context
}

func (rc *recordConsumer) WriteDouble(paramID, timestamp uint64, value float64) error {
	h := rc.h
	v := model.NewInlineValue(timestamp, paramID, value)

	h.addMu.Lock()
	status, token, err := ingestretry.Add(rc.ctx, h.policy, h.logger, func() (model.Status, sequencer.LockToken) {
		return h.writer.Add(v)
	})
	h.addMu.Unlock()

	if err != nil {
		if errors.Is(err, ingestretry.ErrRetriesExhausted) {
			h.logger.Warn("ingest: dropping record after exhausting busy retries, status=%s", status)
			return nil
		}
		return err
	}

	if token.Owns() {
		go h.drainer.Drain(token)
	}
	return nil
}

func (rc *recordConsumer) AddBulkString(data []byte) error {
	h := rc.h
	payload, compressed := compressBulk(data)

	if h.stats != nil {
		h.stats.TrackBytes(false, uint64(len(payload)))
	}
	if compressed {
		h.logger.Debug("ingest: bulk string compressed, original=%d compressed=%d", len(data), len(payload))
	}
	if h.onBulk != nil {
		h.onBulk(payload, compressed)
	}
	return nil
}
