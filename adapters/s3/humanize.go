package s3

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes 將位元組數轉成易讀的字串，例如 2048 -> "2.00 KB"
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(byteUnits)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[i])
}
