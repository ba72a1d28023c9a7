package s3_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"productcatalog/adapters/s3"
)

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:             "0 bytes",
		1023:          "1023 bytes",
		1024:          "1.00 KB",
		1536:          "1.50 KB",
		5 << 20:       "5.00 MB",
		(5 << 20) + 1: "5.00 MB",
		25 << 20:      "25.00 MB",
		3 << 30:       "3.00 GB",
		1 << 60:       "1.00 EB",
	}

	for in, want := range tests {
		assert.Equal(t, want, s3.FormatBytes(in), "FormatBytes(%d)", in)
	}
}
