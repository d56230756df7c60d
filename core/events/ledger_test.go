package events

import (
	"math/big"
	"strings"
	"testing"
)

func TestPrincipalSupplyEvent(t *testing.T) {
	evt := PrincipalSupply{
		Total:     big.NewInt(5000),
		Delta:     big.NewInt(-250),
		Reason:    SupplyReasonBurn,
		Timestamp: 99,
	}.Event()
	if evt.Type != TypePrincipalSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "-250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonBurn {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
	if evt.Timestamp != 99 {
		t.Fatalf("unexpected timestamp %d", evt.Timestamp)
	}
}

func TestTransferEventOmitsZeroSpender(t *testing.T) {
	var from, to, spender [20]byte
	from[19] = 1
	to[19] = 2
	evt := Transfer{From: from, To: to, Amount: big.NewInt(10)}.Event()
	if _, ok := evt.Attributes["spender"]; ok {
		t.Fatalf("spender must be omitted for direct transfers")
	}
	if !strings.HasPrefix(evt.Attributes["from"], "rbt1") {
		t.Fatalf("expected bech32 address, got %s", evt.Attributes["from"])
	}

	spender[19] = 3
	delegated := Transfer{From: from, To: to, Spender: spender, Amount: big.NewInt(10)}.Event()
	if delegated.Attr("spender") == "" {
		t.Fatalf("expected spender attribute for delegated transfer")
	}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(RateChanged{Previous: big.NewInt(2), Current: big.NewInt(1)})
	buf.Emit(PauseChanged{Paused: true})

	sink := &Buffer{}
	buf.Flush(NewFanout(sink, NoopEmitter{}))
	got := sink.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType() != TypeRateChanged || got[1].EventType() != TypePause {
		t.Fatalf("unexpected order: %s, %s", got[0].EventType(), got[1].EventType())
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer cleared after flush")
	}
}

type batchSink struct {
	batches [][]Event
}

func (s *batchSink) Emit(ev Event) { s.batches = append(s.batches, []Event{ev}) }

func (s *batchSink) EmitBatch(evs []Event) { s.batches = append(s.batches, evs) }

func TestFlushKeepsOperationBatchTogether(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(Mint{Amount: big.NewInt(1), Rate: big.NewInt(1)})
	buf.Emit(PrincipalSupply{Total: big.NewInt(1), Delta: big.NewInt(1), Reason: SupplyReasonMint})

	batched := &batchSink{}
	plain := &Buffer{}
	buf.Flush(NewFanout(batched, plain))
	if len(batched.batches) != 1 || len(batched.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 events, got %v", batched.batches)
	}
	if len(plain.Events()) != 2 {
		t.Fatalf("expected plain sink to receive 2 events, got %d", len(plain.Events()))
	}
}
