package story

import (
	"math"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retryAfterSeconds arredonda para cima: Retry-After 0 faria o cliente
// tentar antes da hora.
func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return formatInt(int(math.Ceil(d.Seconds())))
}
