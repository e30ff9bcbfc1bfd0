package flows

import (
	"strconv"
	"time"
)

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
