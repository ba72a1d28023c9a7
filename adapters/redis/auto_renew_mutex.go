package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotHeld = errors.New("lock is not held")

type autoRenewMutexOptions struct {
	logger        *slog.Logger
	expiry        time.Duration
	renewInterval time.Duration
	retryDelay    time.Duration
}

type AutoRenewMutexOption func(*autoRenewMutexOptions)

// WithAutoRenewMutexLogger 設置日誌記錄器
func WithAutoRenewMutexLogger(logger *slog.Logger) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.logger = logger
	}
}

// WithAutoRenewMutexExpiry 設置鎖過期時間
func WithAutoRenewMutexExpiry(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.expiry = d
	}
}

// WithAutoRenewMutexRenewInterval 設置續期間隔，未設置時為過期時間的 1/3
func WithAutoRenewMutexRenewInterval(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.renewInterval = d
	}
}

// WithAutoRenewMutexRetryDelay 設置搶鎖失敗後的重試間隔
func WithAutoRenewMutexRetryDelay(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.retryDelay = d
	}
}

// AutoRenewMutex 包裝 redsync.Mutex，持有期間定期 Extend
type AutoRenewMutex struct {
	mutex   *redsync.Mutex
	key     string
	mu      sync.Mutex
	held    bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	options autoRenewMutexOptions
}

func NewAutoRenewMutex(client *redis.Client, key string, opts ...AutoRenewMutexOption) *AutoRenewMutex {
	// 默認選項
	options := autoRenewMutexOptions{
		logger:     slog.Default(),
		expiry:     8 * time.Second,
		retryDelay: 500 * time.Millisecond,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	rs := redsync.New(goredis.NewPool(client))
	return &AutoRenewMutex{
		mutex: rs.NewMutex(key,
			redsync.WithExpiry(options.expiry),
			redsync.WithTries(1),
		),
		key:     key,
		logger:  options.logger.With(slog.String("caller", "AutoRenewMutex"), slog.String("key", key)),
		options: options,
	}
}

// Lock 阻塞直到拿到鎖或 ctx 結束，回傳的 context 會在鎖遺失或 Unlock 時取消
func (m *AutoRenewMutex) Lock(ctx context.Context) (context.Context, error) {
	const op = "AutoRenewMutex.Lock"
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		err := m.mutex.LockContext(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 鎖被佔用時重試，通訊錯誤直接回傳
		var commErr *redsync.RedisError
		if errors.As(err, &commErr) {
			return nil, fmt.Errorf("[%s] Fail to acquire lock, err=%w", op, err)
		}
		timer.Reset(m.options.retryDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	lockCtx, cancel := context.WithCancel(ctx)
	m.held = true
	m.cancel = cancel
	m.wg.Add(1)
	go m.renew(lockCtx)
	return lockCtx, nil
}

func (m *AutoRenewMutex) renew(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.options.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := m.mutex.ExtendContext(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil || !ok {
				m.logger.Warn("Lock lost", slog.Any("error", err))
				m.release()
				return
			}
		}
	}
}

// release 標記鎖已失效並取消 lock context
func (m *AutoRenewMutex) release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasHeld := m.held
	m.held = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return wasHeld
}

// Unlock 停止續期並釋放鎖
func (m *AutoRenewMutex) Unlock() (bool, error) {
	const op = "AutoRenewMutex.Unlock"
	wasHeld := m.release()
	m.wg.Wait()
	if !wasHeld {
		return false, ErrLockNotHeld
	}
	ok, err := m.mutex.Unlock()
	if err != nil {
		return ok, fmt.Errorf("[%s] Fail to release lock, err=%w", op, err)
	}
	return ok, nil
}

// Valid 回傳鎖是否仍被持有且尚未過期
func (m *AutoRenewMutex) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held && time.Now().Before(m.mutex.Until())
}
