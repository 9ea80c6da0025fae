package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/akumuli/sequencer/pkg/page"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
)

func TestHandlerServeAppliesParsedRecord(t *testing.T) {
	collector := stats.NewCollector()
	seq := sequencer.NewSequencer(1000, page.NewHandle("p0"), sequencer.WithStats(collector))
	w, err := seq.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}

	drainer := NewDrainer(seq, collector, nil, nil)
	handler := NewHandler(seq, w, page.NewHandle("p0"), drainer, WithStats(collector))

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		handler.Serve(context.Background(), server)
		close(done)
	}()

	if _, err := client.Write([]byte(":1\r\n:100\r\n+2.5\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after client closed")
	}

	addOps := collector.GetStats()["add_ops"]
	if addOps != uint64(1) {
		t.Fatalf("add_ops = %v, want 1", addOps)
	}
}

func TestHandlerServeRejectsMalformedInput(t *testing.T) {
	seq := sequencer.NewSequencer(1000, page.NewHandle("p0"))
	w, err := seq.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter: %v", err)
	}

	drainer := NewDrainer(seq, stats.NewCollector(), nil, nil)
	handler := NewHandler(seq, w, page.NewHandle("p0"), drainer)

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		handler.Serve(context.Background(), server)
		close(done)
	}()

	client.Write([]byte("?garbage\r\n"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return on malformed input")
	}
	client.Close()
}
