package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// step 是流程中的一個步驟以及它的補償動作
// undo 會在 do 開始執行之後被呼叫（包含 do 本身失敗的情況），
// 所以 undo 必須能處理只完成一部分的狀態
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga 依序執行步驟，任何一步失敗時以相反順序執行已開始步驟的補償動作
type saga struct {
	logger *slog.Logger
	steps  []step
}

func newSaga(logger *slog.Logger) *saga {
	return &saga{logger: logger}
}

func (s *saga) add(name string, do, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, step{name: name, do: do, undo: undo})
}

// run 回傳補償過程的警告以及原始錯誤，原始錯誤不會被補償失敗覆蓋
func (s *saga) run(ctx context.Context) ([]error, error) {
	started := make([]step, 0, len(s.steps))
	for _, st := range s.steps {
		started = append(started, st)
		if err := st.do(ctx); err != nil {
			s.logger.Warn("Step failed, start compensation", slog.String("step", st.name), slog.Any("error", err))
			return s.compensate(ctx, started), err
		}
	}
	return nil, nil
}

func (s *saga) compensate(ctx context.Context, started []step) []error {
	// 請求被取消時仍然要把補償做完，否則已上傳的物件會變成孤兒
	ctx = context.WithoutCancel(ctx)
	var warnings []error
	for i := len(started) - 1; i >= 0; i-- {
		st := started[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			s.logger.Error("Fail to compensate step", slog.String("step", st.name), slog.Any("error", err))
			warnings = append(warnings, fmt.Errorf("compensate %s: %w", st.name, err))
		}
	}
	return warnings
}
