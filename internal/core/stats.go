package core

import (
	"fmt"
	"io"
)

// printEngineStats dumps the cache, queue, and monitor counters.
func printEngineStats(w io.Writer, e *Engine) {
	cs := e.Manager.CacheStats()
	fmt.Fprintf(w, "\ncache: %d hits, %d misses (%.0f%% hit ratio), %d entries\n",
		cs.Hits, cs.Misses, cs.HitRatio*100, cs.Size)

	qs := e.Manager.QueueStats()
	fmt.Fprintf(w, "queue: %d enqueued, %d processed in %d batch(es), %d over-age\n",
		qs.Enqueued, qs.Processed, qs.Batches, qs.OverAge)

	if e.Monitor != nil {
		fmt.Fprintf(w, "monitor: %s\n", e.Monitor.JSON())
	}
}
