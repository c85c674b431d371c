package bufpool

import "testing"

func TestGetPut(t *testing.T) {
	pool := New(4096)

	buf := pool.Get()
	if len(buf) != 4096 {
		t.Fatalf("buffer length %d, want 4096", len(buf))
	}
	pool.Put(buf)

	again := pool.Get()
	if len(again) != 4096 {
		t.Fatalf("reused buffer length %d, want 4096", len(again))
	}
	if pool.Size() != 4096 {
		t.Fatalf("Size = %d, want 4096", pool.Size())
	}
}

func TestUndersizedBufferDiscarded(t *testing.T) {
	pool := New(4096)
	pool.Put(make([]byte, 16))

	if buf := pool.Get(); len(buf) != 4096 {
		t.Fatalf("buffer length %d after a bad Put, want 4096", len(buf))
	}
}

func TestZeroSizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for size 0")
		}
	}()
	New(0)
}
