package progress

import (
	"errors"
	"testing"
)

func TestMakeSnapshotAggregates(t *testing.T) {
	files := []FileTransfer{
		{Name: "a.txt", Transferred: 40, Total: 100},
		{Name: "b.txt", Transferred: 7, Total: 50},
	}
	s := MakeSnapshot(files, false)
	if s.Transferred != 47 || s.Total != 150 {
		t.Fatalf("aggregates = (%d, %d), want (47, 150)", s.Transferred, s.Total)
	}

	files[0].Transferred = 999
	if s.Files[0].Transferred != 40 {
		t.Fatal("snapshot must copy the file slice")
	}
}

func TestChanSinkDropsOldest(t *testing.T) {
	sink := NewChanSink(2)
	for i := uint64(1); i <= 5; i++ {
		if err := sink.Publish(snap(i, 10)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	first := <-sink.C()
	second := <-sink.C()
	if first.Transferred != 4 || second.Transferred != 5 {
		t.Fatalf("buffered = (%d, %d), want the two freshest (4, 5)", first.Transferred, second.Transferred)
	}
	select {
	case s := <-sink.C():
		t.Fatalf("unexpected extra snapshot %+v", s)
	default:
	}
}

func TestChanSinkClosed(t *testing.T) {
	sink := NewChanSink(1)
	sink.Close()
	sink.Close()
	if err := sink.Publish(snap(1, 1)); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
	if _, ok := <-sink.C(); ok {
		t.Fatal("channel must be closed")
	}
}

func TestMultiKeepsPublishing(t *testing.T) {
	var gotA, gotB int
	failing := SinkFunc(func(Snapshot) error {
		gotA++
		return ErrSinkClosed
	})
	healthy := SinkFunc(func(Snapshot) error {
		gotB++
		return nil
	})
	multi := NewMulti(failing, healthy)

	err := multi.Publish(snap(1, 2))
	if !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected joined ErrSinkClosed, got %v", err)
	}
	if gotA != 1 || gotB != 1 {
		t.Fatalf("publish counts = (%d, %d), want (1, 1)", gotA, gotB)
	}
}
