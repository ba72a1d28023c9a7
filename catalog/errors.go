package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"productcatalog/models"
)

// ValidationError 表示輸入格式錯誤或缺少必要資料
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError 表示指定的商品或圖片不存在
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// CapacityExceededError 表示圖片數量會超過上限
type CapacityExceededError struct {
	Current int
	Adding  int
	Limit   int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("product cannot have more than %d images (current=%d, adding=%d)", e.Limit, e.Current, e.Adding)
}

// StoreError 表示外部物件儲存的操作失敗
// Committed 為 true 時代表在失敗之前已經有部分變更寫入
type StoreError struct {
	Op        string
	Ref       string
	Committed bool
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("object store %s failed", e.Op)
	if e.Ref != "" {
		msg += fmt.Sprintf(" (ref=%s)", e.Ref)
	}
	msg += fmt.Sprintf(": %v", e.Err)
	if e.Committed {
		msg += "; some prior changes were already committed"
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PartialFailureError 表示商品已經保存，但非關鍵的步驟失敗
type PartialFailureError struct {
	Step string
	Err  error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("product saved but %s failed: %v", e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Outcome 是每個流程的結果
// Product 是流程結束時商品的狀態（失敗時為失敗前或盡力保留的狀態），
// Warnings 收集清理步驟的失敗，這些失敗只會記錄不會覆蓋原始錯誤
type Outcome struct {
	Product  *models.Product
	Warnings []error
}
