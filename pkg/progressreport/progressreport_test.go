package progressreport

import (
	"strings"
	"testing"
)

func TestReportAccumulatesDeltasAcrossTables(t *testing.T) {
	r := NewReporter(false, 1000)
	r.Report("shop", "orders", 10, 100)
	r.Report("shop", "orders", 20, 250)
	r.Report("shop", "customers", 5, 40)

	if r.bytesTotal != 290 {
		t.Fatalf("bytesTotal = %d, want 290", r.bytesTotal)
	}
}

func TestFinishReturnsHumanReadableSummary(t *testing.T) {
	r := NewReporter(false, 1000)
	r.Report("shop", "orders", 1, 2048)
	summary := r.Finish()
	if !strings.Contains(summary, "dumped") {
		t.Fatalf("summary = %q, want it to mention 'dumped'", summary)
	}
}
