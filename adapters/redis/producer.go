package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var ErrProducerClosed = errors.New("producer is closed")

type producerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	encodeFunc   func(T) (map[string]any, error)
	maxLen       int64
	writeTimeout time.Duration
	flushTimeout time.Duration
}

type ProducerOption[T any] func(*producerOptions[T])

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝大小
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerEncodeFunc 設置消息序列化函數
func WithProducerEncodeFunc[T any](fn func(T) (map[string]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.encodeFunc = fn
	}
}

// WithProducerMaxLen 設置 stream 的大約長度上限，0 代表不限制
func WithProducerMaxLen[T any](n int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = n
	}
}

// WithProducerFlushTimeout 設置關閉時等待緩衝消息寫出的時間
func WithProducerFlushTimeout[T any](d time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.flushTimeout = d
	}
}

// Producer 在背景把消息寫入 stream，Publish 不會等待 redis 回應
type Producer[T any] struct {
	client *redis.Client
	stream string
	queue  *chanx.UnboundedChan[map[string]any]
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger

	options producerOptions[T]
}

func NewProducer[T any](client *redis.Client, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := producerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		encodeFunc:   EncodeMessage[T],
		writeTimeout: 5 * time.Second,
		flushTimeout: 3 * time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Producer[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.queue = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancel = cancel
	p.closed = false
	p.logger.Info("Start stream producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("Stream producer stopped")
		for {
			select {
			case <-ctx.Done():
				return
			case values, ok := <-p.queue.Out:
				if !ok {
					return
				}
				p.write(values)
			}
		}
	}()
}

// write 使用獨立的 context，關閉時正在寫入的消息仍然會完成
func (p *Producer[T]) write(values map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), p.options.writeTimeout)
	defer cancel()
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.options.maxLen,
		Approx: p.options.maxLen > 0,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Error("Fail to publish message", slog.Any("error", err))
		return
	}
	p.logger.Debug("Message published", slog.String("messageId", id))
}

func (p *Producer[T]) Publish(data T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	values, err := p.options.encodeFunc(data)
	if err != nil {
		return fmt.Errorf("encode message error: %w", err)
	}
	p.queue.In <- values
	return nil
}

// Close 停止接收新消息，並在 flushTimeout 內盡量寫出緩衝中的消息
func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	deadline := time.Now().Add(p.options.flushTimeout)
	for p.queue.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := p.queue.Len(); n > 0 {
		p.logger.Warn("Drop unpublished messages", slog.Int("count", n))
	}
	p.cancel()
	p.wg.Wait()
}
