package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrConsumerClosed = errors.New("consumer is closed")

// Message 是從 stream 讀到的一則消息
type Message[T any] struct {
	ID   string
	Data T

	client     *redis.Client
	stream     string
	group      string
	deadLetter string
	raw        map[string]any
	mu         sync.Mutex
	done       bool
}

// Done 確認消息已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.ID).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to ack message, err=%w", op, err)
	}
	m.done = true
	return nil
}

// Fail 把消息連同失敗原因移到 dead-letter stream，並確認原消息
func (m *Message[T]) Fail(ctx context.Context, cause error) error {
	const op = "Message.Fail"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	values := make(map[string]any, len(m.raw)+1)
	for k, v := range m.raw {
		values[k] = v
	}
	if cause != nil {
		values["error"] = cause.Error()
	}
	if err := moveToDeadLetter(ctx, m.client, m.stream, m.group, m.deadLetter, m.ID, values); err != nil {
		return fmt.Errorf("[%s] Fail to dead-letter message, err=%w", op, err)
	}
	m.done = true
	return nil
}

// moveToDeadLetter 在同一個 transaction 內寫入 dead-letter 並 ack
func moveToDeadLetter(ctx context.Context, client *redis.Client, stream, group, deadLetter, id string, values map[string]any) error {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: deadLetter, Values: values})
		pipe.XAck(ctx, stream, group, id)
		return nil
	})
	return err
}

type groupConsumerOptions[T any] struct {
	logger       *slog.Logger
	parseFunc    func(map[string]any) (T, error)
	bufferSize   int
	blockTimeout time.Duration
	retryDelay   time.Duration
	deadLetter   string
	exclusive    bool
	mutex        IAutoRenewMutex
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc 設置消息解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBufferSize 設置下游 channel 的緩衝大小
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerRetryDelay 設置讀取失敗後的等待時間
func WithGroupConsumerRetryDelay[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.retryDelay = d
	}
}

// WithGroupConsumerDeadLetter 設置 dead-letter stream 名稱
func WithGroupConsumerDeadLetter[T any](stream string) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.deadLetter = stream
	}
}

// WithGroupConsumerExclusive 同一個 group 同時只允許一個 consumer 讀取
func WithGroupConsumerExclusive[T any](exclusive bool) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.exclusive = exclusive
	}
}

// WithGroupConsumerMutex 注入 mutex (主要用於測試)
func WithGroupConsumerMutex[T any](mutex IAutoRenewMutex) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.mutex = mutex
	}
}

type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Message[T]
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	mutex      IAutoRenewMutex
	logger     *slog.Logger
	options    groupConsumerOptions[T]
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	// 默認選項
	options := groupConsumerOptions[T]{
		logger:       slog.Default(),
		parseFunc:    DecodeMessage[T],
		bufferSize:   1,
		blockTimeout: time.Second,
		retryDelay:   time.Second,
		deadLetter:   stream + ":dead-letter",
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	gc := &GroupConsumer[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		options: options,
	}
	if options.exclusive {
		gc.mutex = options.mutex
		if gc.mutex == nil {
			gc.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group))
		}
	}
	return gc, nil
}

// Start 建立 consumer group (如果不存在) 並開始在背景讀取
func (s *GroupConsumer[T]) Start() error {
	const op = "GroupConsumer.Start"
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.ensureGroup(ctx); err != nil {
		cancel()
		return fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}
	s.downStream = make(chan *Message[T], s.options.bufferSize)
	s.cancel = cancel
	s.closed = false
	s.logger.Info("Start group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("Group consumer stopped")
		defer close(s.downStream)
		s.run(ctx)
	}()
	return nil
}

func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("Closing group consumer")
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *GroupConsumer[T]) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *GroupConsumer[T]) run(ctx context.Context) {
	for ctx.Err() == nil {
		workCtx := ctx
		if s.mutex != nil {
			// 拿到鎖之後 workCtx 會在鎖遺失時被取消
			lockCtx, err := s.mutex.Lock(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("Fail to acquire lock", slog.Any("error", err))
				s.sleep(ctx)
				continue
			}
			workCtx = lockCtx
		}

		err := s.consume(workCtx)

		if s.mutex != nil {
			if _, unlockErr := s.mutex.Unlock(); unlockErr != nil {
				s.logger.Warn("Fail to release lock", slog.Any("error", unlockErr))
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Consume loop interrupted, restarting", slog.Any("error", err))
		s.sleep(ctx)
	}
}

// consume 先讀取自己名下尚未 ack 的消息，讀完後才切換到新消息
func (s *GroupConsumer[T]) consume(ctx context.Context) error {
	cursor := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		block := s.options.blockTimeout
		if cursor != ">" {
			block = -1
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, cursor},
			Count:    1,
			Block:    block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			cursor = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// NOGROUP 代表 stream 被刪除，重建 group 之後由外層重啟
			if strings.HasPrefix(err.Error(), "NOGROUP") {
				if groupErr := s.ensureGroup(ctx); groupErr != nil {
					return groupErr
				}
			}
			return err
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			cursor = ">"
			continue
		}

		message := streams[0].Messages[0]
		if cursor != ">" {
			cursor = message.ID
		}
		if err := s.dispatch(ctx, message); err != nil {
			return err
		}
	}
}

func (s *GroupConsumer[T]) dispatch(ctx context.Context, message redis.XMessage) error {
	logger := s.logger.With(slog.String("messageId", message.ID))

	// pending 中的消息可能已經被 XTRIM 移除，只剩下 ID
	if len(message.Values) == 0 {
		logger.Warn("Skip message without payload")
		return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
	}

	data, err := s.options.parseFunc(message.Values)
	if err != nil {
		logger.Error("Fail to parse message", slog.Any("error", err))
		values := make(map[string]any, len(message.Values)+1)
		for k, v := range message.Values {
			values[k] = v
		}
		values["error"] = err.Error()
		return moveToDeadLetter(ctx, s.client, s.stream, s.group, s.options.deadLetter, message.ID, values)
	}

	msg := &Message[T]{
		ID:         message.ID,
		Data:       data,
		client:     s.client,
		stream:     s.stream,
		group:      s.group,
		deadLetter: s.options.deadLetter,
		raw:        message.Values,
	}
	select {
	case <-ctx.Done():
		// 消息保留在 pending，下一輪會從 cursor "0" 重新讀到
		return ctx.Err()
	case s.downStream <- msg:
		return nil
	}
}

func (s *GroupConsumer[T]) sleep(ctx context.Context) {
	timer := time.NewTimer(s.options.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
