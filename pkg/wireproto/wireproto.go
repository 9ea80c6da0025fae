// Package wireproto implements the incremental, stream-fed parser for the
// ingest wire format: a sequence of ASCII, CRLF-delimited tokens grouped
// into (param_id, timestamp, value) write records and independent bulk
// strings. Input arrives as a sequence of PDUs, each an arbitrary fragment
// of the byte stream; a single token may span any number of PDUs, so the
// parser carries its own scratch buffer across ParseNext calls rather than
// requiring each PDU to hold a complete token.
package wireproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/stats"
	"github.com/akumuli/sequencer/pkg/telemetry"
)

// ErrTruncated is the underlying error Err() reports after Close observes
// the machine mid-token, i.e. not sitting at ExpectType.
var ErrTruncated = errors.New("wireproto: truncated input at close")

// BulkChecksumThreshold is the minimum bulk string length, in bytes, at
// which a completed bulk payload's xxhash checksum is recorded as an
// attribute of its telemetry span; the consumer receives only the payload.
const BulkChecksumThreshold = 64

// PDU is a single delivery of contiguous bytes into the parser: an
// arbitrary fragment of the byte stream. Buffer already holds only the
// valid region (Go's slice header tracks its own length, so unlike the
// original buffer+size+pos triple, Buffer's length is never separately
// tracked); Pos is the offset within Buffer the parser should resume
// reading from, which is always 0 for a freshly delivered PDU and exists
// so a caller can hand the same PDU back after a partial ParseNext.
type PDU struct {
	Buffer []byte
	Pos    int
}

type tokenState int

const (
	stateExpectType tokenState = iota
	stateReadInt
	stateReadFloat
	stateReadBulkLen
	stateReadBulkBody
	stateExpectBulkCRLF
)

// Parser drives the wire format's state machine across any number of
// PDUs, invoking its Consumer once per completed record.
type Parser struct {
	consumer cursor.Consumer

	stats  stats.Collector
	logger logging.Logger
	tel    telemetry.Telemetry

	state tokenState
	err   error

	scratch []byte // digit/float text accumulated across PDU boundaries
	sawCR   bool

	numericIdx int // 0: param_id, 1: timestamp, 2: value
	paramID    uint64
	timestamp  uint64

	bulkLen    uint64
	bulkBuf    []byte
	bulkFilled uint64
}

// Option configures a Parser at construction time.
type Option func(*Parser)

// WithStats attaches a statistics collector.
func WithStats(c stats.Collector) Option {
	return func(p *Parser) { p.stats = c }
}

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// WithTelemetry attaches a telemetry sink; parsed-record counts and
// bulk-string size histograms are recorded against it.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(p *Parser) { p.tel = t }
}

// NewParser creates a Parser that drives consumer.
func NewParser(consumer cursor.Consumer, opts ...Option) *Parser {
	p := &Parser{
		consumer: consumer,
		logger:   logging.Default(),
		tel:      telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Start()
	return p
}

// Start (re)initializes the parser's state machine. It is called by
// NewParser; a caller reusing a Parser instance across logically distinct
// streams may call it again, but only once Close has returned without
// ErrTruncated.
func (p *Parser) Start() {
	p.state = stateExpectType
	p.err = nil
	p.scratch = p.scratch[:0]
	p.sawCR = false
	p.numericIdx = 0
	p.bulkLen = 0
	p.bulkBuf = nil
	p.bulkFilled = 0
}

// ParseNext drives the state machine over pdu's unconsumed bytes, emitting
// one consumer callback per completed record or bulk string. It returns
// model.StatusParseError (and records the error for all future calls) on
// malformed input, and model.StatusSuccess once the PDU is fully consumed.
func (p *Parser) ParseNext(pdu PDU) model.Status {
	if p.err != nil {
		return model.StatusParseError
	}

	buf := pdu.Buffer[pdu.Pos:]
	for _, b := range buf {
		if err := p.step(b); err != nil {
			p.fail(err)
			return model.StatusParseError
		}
	}
	return model.StatusSuccess
}

// Close asserts the machine is at ExpectType (no half-parsed token
// pending). A non-empty tail is protocol-fatal, mirroring the original's
// TruncatedInput signal, which this module reports via ParseError since
// the Status enum (spec §6) carries no separate truncation code.
func (p *Parser) Close() model.Status {
	if p.err != nil {
		return model.StatusParseError
	}
	if p.state != stateExpectType {
		p.fail(ErrTruncated)
		return model.StatusParseError
	}
	return model.StatusSuccess
}

// Err returns the fatal error that made the parser instance unusable, or
// nil if it has not failed.
func (p *Parser) Err() error {
	return p.err
}

func (p *Parser) fail(err error) {
	p.err = err
	p.logger.Error("wireproto: parser failed: %v", err)
	if p.stats != nil {
		p.stats.TrackError("parse_error")
	}
}

// step advances the state machine by exactly one byte.
func (p *Parser) step(b byte) error {
	switch p.state {
	case stateExpectType:
		return p.stepExpectType(b)
	case stateReadInt, stateReadFloat, stateReadBulkLen:
		return p.stepAccumulate(b)
	case stateReadBulkBody:
		return p.stepBulkBody(b)
	case stateExpectBulkCRLF:
		return p.stepExpectBulkCRLF(b)
	default:
		return fmt.Errorf("wireproto: unreachable state %d", p.state)
	}
}

func (p *Parser) stepExpectType(b byte) error {
	p.scratch = p.scratch[:0]
	p.sawCR = false
	switch b {
	case ':':
		p.state = stateReadInt
	case '+':
		p.state = stateReadFloat
	case '$':
		p.state = stateReadBulkLen
	default:
		return fmt.Errorf("wireproto: malformed type byte %q", b)
	}
	return nil
}

// stepAccumulate handles ReadInt, ReadFloat and ReadBulkLen: all three
// accumulate a token body until a bare CRLF terminator.
func (p *Parser) stepAccumulate(b byte) error {
	if p.sawCR {
		if b != '\n' {
			return fmt.Errorf("wireproto: expected LF after CR, got %q", b)
		}
		return p.completeAccumulated()
	}
	if b == '\r' {
		p.sawCR = true
		return nil
	}
	p.scratch = append(p.scratch, b)
	return nil
}

func (p *Parser) completeAccumulated() error {
	body := string(p.scratch)
	switch p.state {
	case stateReadInt:
		v, err := parseUint(body)
		if err != nil {
			return fmt.Errorf("wireproto: non-numeric integer body %q: %w", body, err)
		}
		return p.completeInt(v)
	case stateReadFloat:
		v, err := parseFloat(body)
		if err != nil {
			return fmt.Errorf("wireproto: non-numeric float body %q: %w", body, err)
		}
		return p.completeFloat(v)
	case stateReadBulkLen:
		n, err := parseUint(body)
		if err != nil {
			return fmt.Errorf("wireproto: non-numeric bulk length %q: %w", body, err)
		}
		return p.beginBulkBody(n)
	default:
		return fmt.Errorf("wireproto: unreachable accumulate state %d", p.state)
	}
}

func (p *Parser) completeInt(v uint64) error {
	switch p.numericIdx {
	case 0:
		p.paramID = v
		p.numericIdx = 1
	case 1:
		p.timestamp = v
		p.numericIdx = 2
	default:
		return fmt.Errorf("wireproto: unexpected integer token, record already has param_id and timestamp")
	}
	p.state = stateExpectType
	return nil
}

func (p *Parser) completeFloat(v float64) error {
	if p.numericIdx != 2 {
		return fmt.Errorf("wireproto: float token arrived before param_id and timestamp")
	}

	batchID := uuid.New()
	ctx, span := p.tel.StartSpan(context.Background(), "wireproto.record",
		attribute.String("batch_id", batchID.String()))
	err := p.consumer.WriteDouble(p.paramID, p.timestamp, v)
	span.End()
	if err != nil {
		return fmt.Errorf("wireproto: consumer rejected record: %w", err)
	}
	if p.stats != nil {
		p.stats.TrackOperation(stats.OpParse)
	}
	p.tel.RecordCounter(ctx, "wireproto.records_parsed", 1)
	p.numericIdx = 0
	p.state = stateExpectType
	return nil
}

func (p *Parser) beginBulkBody(n uint64) error {
	p.bulkLen = n
	p.bulkBuf = make([]byte, 0, n)
	p.bulkFilled = 0
	p.sawCR = false
	if n == 0 {
		p.state = stateExpectBulkCRLF
		return nil
	}
	p.state = stateReadBulkBody
	return nil
}

func (p *Parser) stepBulkBody(b byte) error {
	p.bulkBuf = append(p.bulkBuf, b)
	p.bulkFilled++
	if p.bulkFilled == p.bulkLen {
		p.state = stateExpectBulkCRLF
		p.sawCR = false
	}
	return nil
}

func (p *Parser) stepExpectBulkCRLF(b byte) error {
	if !p.sawCR {
		if b != '\r' {
			return fmt.Errorf("wireproto: expected CR after bulk body, got %q", b)
		}
		p.sawCR = true
		return nil
	}
	if b != '\n' {
		return fmt.Errorf("wireproto: expected LF after CR, got %q", b)
	}

	batchID := uuid.New()
	payload := p.bulkBuf
	ctx, span := p.tel.StartSpan(context.Background(), "wireproto.bulk",
		attribute.String("batch_id", batchID.String()))
	if uint64(len(payload)) >= BulkChecksumThreshold {
		span.SetAttributes(attribute.Int64("sum64", int64(xxhash.Sum64(payload))))
	}
	err := p.consumer.AddBulkString(payload)
	span.End()
	if err != nil {
		return fmt.Errorf("wireproto: consumer rejected bulk string: %w", err)
	}
	if p.stats != nil {
		p.stats.TrackBytes(false, uint64(len(payload)))
	}
	p.tel.RecordHistogram(ctx, "wireproto.bulk_size", float64(len(payload)))

	p.bulkBuf = nil
	p.bulkLen = 0
	p.bulkFilled = 0
	p.state = stateExpectType
	return nil
}
