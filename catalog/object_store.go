//go:generate mockgen -package=catalog -destination=mock_object_store.go -source=object_store.go

package catalog

import "context"

// Upload 是已經通過大小與 MIME 檢查的上傳檔案
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// DeleteOutcome 表示刪除外部物件的結果
type DeleteOutcome int

const (
	// DeleteDeleted 物件存在且已刪除
	DeleteDeleted DeleteOutcome = iota + 1
	// DeleteSkipped 物件不存在或參照格式錯誤，視為已刪除
	DeleteSkipped
	// DeleteFailed 刪除失敗，物件可能仍存在
	DeleteFailed
)

func (o DeleteOutcome) String() string {
	switch o {
	case DeleteDeleted:
		return "deleted"
	case DeleteSkipped:
		return "skipped"
	case DeleteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeleteResult 是 DeleteMany 中單一參照的刪除結果
type DeleteResult struct {
	Ref     string
	Outcome DeleteOutcome
	Err     error
}

// ObjectStore 定義了外部圖片儲存的操作介面
type ObjectStore interface {
	// Store 上傳檔案並回傳外部參照，之後可以用這個參照刪除同一個物件
	Store(ctx context.Context, file Upload, destinationHint string) (string, error)
	// Delete 刪除參照指向的物件；物件不存在或參照格式錯誤時回傳 DeleteSkipped 而不是錯誤
	Delete(ctx context.Context, ref string) (DeleteOutcome, error)
	// DeleteMany 依序對每個參照呼叫 Delete，單一失敗不會中斷其他刪除
	DeleteMany(ctx context.Context, refs []string) []DeleteResult
}
