package s3

import (
	"fmt"
	"io"
)

// SizeLimitError 表示上傳內容超過允許的大小
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("exceeds size limit of %s", FormatBytes(e.Limit))
}

// ReadAllLimited 最多讀取 limit 個位元組；多讀一個位元組以判斷是否超過
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		limit = 0
	}
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return content[:limit], &SizeLimitError{Limit: limit}
	}
	return content, nil
}
