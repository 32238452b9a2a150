package meterlog

import (
	"fmt"
	"path/filepath"
	"time"
)

// Path returns the log file for the calendar day of t under base.
func Path(base string, t time.Time) string {
	return filepath.Join(base,
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d.log", t.Day()))
}
