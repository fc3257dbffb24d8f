package dumper

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sqlshell/dbdump/pkg/dumpconfig"
)

func newTestCoordinator() *Coordinator {
	return New(&dumpconfig.Config{})
}

func TestStateStringCoversEveryState(t *testing.T) {
	for s := Init; s <= Aborted; s++ {
		if got := s.String(); got == "" {
			t.Fatalf("State(%d).String() returned empty", int(s))
		}
	}
}

func TestOnProgressAccumulatesAcrossChunks(t *testing.T) {
	c := newTestCoordinator()
	// first chunk of orders grows to 500 bytes, then a second chunk starts
	// at 100 (a drop signals the boundary) and grows to 300.
	c.onProgress("shop", "orders", 10, 200)
	c.onProgress("shop", "orders", 20, 500)
	c.onProgress("shop", "orders", 5, 100)
	c.onProgress("shop", "orders", 15, 300)

	if got := c.tableDataBytes("shop", "orders"); got != 800 {
		t.Fatalf("tableDataBytes = %d, want 800 (500 + 300)", got)
	}
}

func TestOnProgressKeepsTablesIndependent(t *testing.T) {
	c := newTestCoordinator()
	c.onProgress("shop", "orders", 1, 100)
	c.onProgress("shop", "customers", 1, 50)
	if got := c.tableDataBytes("shop", "orders"); got != 100 {
		t.Fatalf("orders = %d, want 100", got)
	}
	if got := c.tableDataBytes("shop", "customers"); got != 50 {
		t.Fatalf("customers = %d, want 50", got)
	}
}

func TestFirstWorkerExceptionReturnsFirstRecordedError(t *testing.T) {
	c := newTestCoordinator()
	a, b := &atomic.Value{}, &atomic.Value{}
	b.Store(errors.New("worker 1 failed"))
	c.exceptions = []*atomic.Value{a, b}

	err := c.firstWorkerException()
	if err == nil || err.Error() != "worker 1 failed" {
		t.Fatalf("firstWorkerException() = %v, want worker 1 failed", err)
	}
}

func TestFirstWorkerExceptionNilWhenNoneRecorded(t *testing.T) {
	c := newTestCoordinator()
	c.exceptions = []*atomic.Value{{}, {}}
	if err := c.firstWorkerException(); err != nil {
		t.Fatalf("firstWorkerException() = %v, want nil", err)
	}
}
