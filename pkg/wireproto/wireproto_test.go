package wireproto

import (
	"reflect"
	"testing"

	"github.com/akumuli/sequencer/pkg/model"
)

type mockConsumer struct {
	paramIDs   []uint64
	timestamps []uint64
	values     []float64
	bulk       [][]byte
}

func (m *mockConsumer) WriteDouble(paramID, timestamp uint64, value float64) error {
	m.paramIDs = append(m.paramIDs, paramID)
	m.timestamps = append(m.timestamps, timestamp)
	m.values = append(m.values, value)
	return nil
}

func (m *mockConsumer) AddBulkString(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.bulk = append(m.bulk, cp)
	return nil
}

func pdu(s string) PDU {
	return PDU{Buffer: []byte(s)}
}

func TestParseSingleBuffer(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	status := p.ParseNext(pdu(":1\r\n:2\r\n+34.5\r\n:6\r\n:7\r\n+8.9\r\n"))
	if status != model.StatusSuccess {
		t.Fatalf("ParseNext: expected success, got %s", status)
	}
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("Close: expected success, got %s", status)
	}

	if !reflect.DeepEqual(cons.paramIDs, []uint64{1, 6}) {
		t.Errorf("param ids = %v, want [1 6]", cons.paramIDs)
	}
	if !reflect.DeepEqual(cons.timestamps, []uint64{2, 7}) {
		t.Errorf("timestamps = %v, want [2 7]", cons.timestamps)
	}
	if !reflect.DeepEqual(cons.values, []float64{34.5, 8.9}) {
		t.Errorf("values = %v, want [34.5 8.9]", cons.values)
	}
}

func TestParseAcrossPDUBoundary(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	if status := p.ParseNext(pdu(":1\r\n:2\r\n+34.5\r\n:6\r\n:7\r\n+8.9")); status != model.StatusSuccess {
		t.Fatalf("ParseNext(pdu1): expected success, got %s", status)
	}
	if len(cons.paramIDs) != 1 {
		t.Fatalf("after first PDU, expected exactly one emitted record, got %d", len(cons.paramIDs))
	}
	if cons.paramIDs[0] != 1 || cons.timestamps[0] != 2 || cons.values[0] != 34.5 {
		t.Errorf("first record = (%d,%d,%v), want (1,2,34.5)", cons.paramIDs[0], cons.timestamps[0], cons.values[0])
	}

	if status := p.ParseNext(pdu("\r\n:10\r\n:11\r\n+12.13\r\n:14\r\n:15\r\n+16.7\r\n")); status != model.StatusSuccess {
		t.Fatalf("ParseNext(pdu2): expected success, got %s", status)
	}
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("Close: expected success, got %s", status)
	}

	wantParams := []uint64{1, 6, 10, 14}
	wantTS := []uint64{2, 7, 11, 15}
	wantVals := []float64{34.5, 8.9, 12.13, 16.7}
	if !reflect.DeepEqual(cons.paramIDs, wantParams) {
		t.Errorf("param ids = %v, want %v", cons.paramIDs, wantParams)
	}
	if !reflect.DeepEqual(cons.timestamps, wantTS) {
		t.Errorf("timestamps = %v, want %v", cons.timestamps, wantTS)
	}
	if !reflect.DeepEqual(cons.values, wantVals) {
		t.Errorf("values = %v, want %v", cons.values, wantVals)
	}
}

func TestParseBulkStringAcrossPDU(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	if status := p.ParseNext(pdu("$12\r\n123456")); status != model.StatusSuccess {
		t.Fatalf("ParseNext(pdu1): expected success, got %s", status)
	}
	if len(cons.bulk) != 0 {
		t.Fatalf("expected no bulk callback yet, got %d", len(cons.bulk))
	}

	if status := p.ParseNext(pdu("789ABC\r\n")); status != model.StatusSuccess {
		t.Fatalf("ParseNext(pdu2): expected success, got %s", status)
	}
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("Close: expected success, got %s", status)
	}

	if len(cons.bulk) != 1 {
		t.Fatalf("expected exactly one bulk callback, got %d", len(cons.bulk))
	}
	if string(cons.bulk[0]) != "123456789ABC" {
		t.Errorf("bulk = %q, want %q", cons.bulk[0], "123456789ABC")
	}
}

func TestParseEmptyBulkString(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	if status := p.ParseNext(pdu("$0\r\n\r\n")); status != model.StatusSuccess {
		t.Fatalf("ParseNext: expected success, got %s", status)
	}
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("Close: expected success, got %s", status)
	}
	if len(cons.bulk) != 1 || len(cons.bulk[0]) != 0 {
		t.Fatalf("expected one empty bulk callback, got %v", cons.bulk)
	}
}

func TestParseConcatIsSplitInvariant(t *testing.T) {
	whole := ":1\r\n:2\r\n+34.5\r\n:6\r\n:7\r\n+8.9\r\n:10\r\n:11\r\n+12.13\r\n"

	consA := &mockConsumer{}
	pa := NewParser(consA)
	pa.ParseNext(pdu(whole))
	pa.Close()

	for split := 1; split < len(whole); split++ {
		consB := &mockConsumer{}
		pb := NewParser(consB)
		pb.ParseNext(pdu(whole[:split]))
		pb.ParseNext(pdu(whole[split:]))
		pb.Close()

		if !reflect.DeepEqual(consA.paramIDs, consB.paramIDs) ||
			!reflect.DeepEqual(consA.timestamps, consB.timestamps) ||
			!reflect.DeepEqual(consA.values, consB.values) {
			t.Fatalf("split at %d diverged: got %v/%v/%v, want %v/%v/%v",
				split, consB.paramIDs, consB.timestamps, consB.values,
				consA.paramIDs, consA.timestamps, consA.values)
		}
	}
}

func TestMalformedTypeByteIsParseError(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	if status := p.ParseNext(pdu("?1\r\n")); status != model.StatusParseError {
		t.Fatalf("expected ParseError, got %s", status)
	}
	// The parser instance is now unusable; further calls keep reporting
	// the same fatal status.
	if status := p.ParseNext(pdu(":1\r\n")); status != model.StatusParseError {
		t.Fatalf("expected ParseError on subsequent call, got %s", status)
	}
}

func TestNonNumericIntegerBodyIsParseError(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	if status := p.ParseNext(pdu(":abc\r\n")); status != model.StatusParseError {
		t.Fatalf("expected ParseError, got %s", status)
	}
}

func TestCloseOnHalfParsedTokenIsParseError(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	p.ParseNext(pdu(":1\r\n:2\r\n+34.5\r\n:6"))
	if status := p.Close(); status != model.StatusParseError {
		t.Fatalf("expected ParseError (truncated) at Close, got %s", status)
	}
}

func TestCloseAtExpectTypeWithNoPendingTokenSucceeds(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	p.ParseNext(pdu(":1\r\n:2\r\n+34.5\r\n"))
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("expected success, got %s", status)
	}
}

func TestLargeBulkStringAboveChecksumThresholdIsDelivered(t *testing.T) {
	cons := &mockConsumer{}
	p := NewParser(cons)

	payload := make([]byte, BulkChecksumThreshold+10)
	for i := range payload {
		payload[i] = 'x'
	}
	msg := "$" + itoa(len(payload)) + "\r\n" + string(payload) + "\r\n"

	if status := p.ParseNext(pdu(msg)); status != model.StatusSuccess {
		t.Fatalf("ParseNext: expected success, got %s", status)
	}
	if status := p.Close(); status != model.StatusSuccess {
		t.Fatalf("Close: expected success, got %s", status)
	}
	if len(cons.bulk) != 1 || len(cons.bulk[0]) != len(payload) {
		t.Fatalf("expected one bulk callback of length %d, got %v", len(payload), cons.bulk)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
