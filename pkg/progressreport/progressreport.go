// Package progressreport drives the dump job's progress bar and final
// summary line, grounded on internal/progressbar's StartNewByteBar (the
// same bar pkg/new_storage/general.go wraps around an upload reader)
// and pkg/utils's FormatBytes/HumanizeDuration for the closing summary.
package progressreport

import (
	"fmt"
	"sync"
	"time"

	"github.com/sqlshell/dbdump/internal/progressbar"
	"github.com/sqlshell/dbdump/pkg/utils"
)

// Reporter tracks total bytes written across every Worker and drives a
// single shared progress bar, safe for concurrent Report calls.
type Reporter struct {
	mu         sync.Mutex
	bar        *progressbar.Bar
	startedAt  time.Time
	lastSeen   map[string]uint64
	rowsTotal  uint64
	bytesTotal uint64
}

// NewReporter starts a byte progress bar against estimatedTotalBytes.
// show controls whether the bar (and the closing summary) are printed
// at all, matching the teacher's disableProgressBar toggle.
func NewReporter(show bool, estimatedTotalBytes int64) *Reporter {
	return &Reporter{
		bar:       progressbar.StartNewByteBar(show, estimatedTotalBytes),
		startedAt: time.Now(),
		lastSeen:  map[string]uint64{},
	}
}

// Report matches worker.ProgressFunc's signature so a Reporter can be
// passed directly as every Worker's progress sink.
func (r *Reporter) Report(schema, table string, rows, dataBytes uint64) {
	key := schema + "." + table
	if !r.mu.TryLock() {
		return
	}
	defer r.mu.Unlock()

	prev := r.lastSeen[key]
	if dataBytes >= prev {
		delta := dataBytes - prev
		r.bytesTotal += delta
		r.bar.Add64(int64(delta))
	}
	r.lastSeen[key] = dataBytes
	r.rowsTotal = rows
}

// Finish stops the bar and returns the closing summary line.
func (r *Reporter) Finish() string {
	r.bar.Finish()
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := time.Since(r.startedAt)
	return fmt.Sprintf("dumped %s in %s", utils.FormatBytes(r.bytesTotal), utils.HumanizeDuration(elapsed))
}
