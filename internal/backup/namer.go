package backup

import "time"

// TimestampLayout is the suffix format of every backup file name (YYYY-MM-DD_HH_MM_SS)
const TimestampLayout = "2006-01-02_15_04_05"

// Name appends "." and the local timestamp of now to base
func Name(base string, now time.Time) string {
	return base + "." + now.Local().Format(TimestampLayout)
}

// Namer produces backup file names from a clock
type Namer struct {
	now func() time.Time
}

// NewNamer creates a namer; a nil clock uses time.Now
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now}
}

// Name returns base suffixed with the current local timestamp
func (n *Namer) Name(base string) string {
	return Name(base, n.now())
}
