//go:build unix

package monitor

import (
	"time"

	"golang.org/x/sys/unix"
)

func readResourceSample() (ResourceSample, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return ResourceSample{}, false
	}
	return ResourceSample{
		MaxRSSKB:   int64(ru.Maxrss),
		UserTime:   time.Duration(ru.Utime.Nano()),
		SystemTime: time.Duration(ru.Stime.Nano()),
		SampledAt:  time.Now(),
	}, true
}
