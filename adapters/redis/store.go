package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"productcatalog/adapters/session"
)

// Store 以 redis hash 實作 session.IStore
type Store struct {
	client *redis.Client
	prefix string
}

type StoreOption func(*Store)

// WithStorePrefix 設定 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func NewStore(client *redis.Client, opts ...StoreOption) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	store := &Store{client: client, prefix: "session:"}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

var _ session.IStore = (*Store)(nil)

// Load 讀取整個 hash，key 不存在時回傳空 map
func (s *Store) Load(ctx context.Context, id string) (map[string]string, error) {
	const op = "Store.Load"
	data, err := s.client.HGetAll(ctx, s.prefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}
	return data, nil
}

// saveScript 原子性地覆寫 hash 並設定過期時間，ARGV[1] 為毫秒
var saveScript = redis.NewScript(`
local key = KEYS[1]
redis.call('DEL', key)
if #ARGV > 1 then
    redis.call('HSET', key, unpack(ARGV, 2))
    redis.call('PEXPIRE', key, ARGV[1])
end
return 1
`)

// Save 覆寫 session 資料，data 為空時等同刪除
func (s *Store) Save(ctx context.Context, id string, data map[string]string, ttl time.Duration) error {
	const op = "Store.Save"
	args := make([]any, 0, len(data)*2+1)
	args = append(args, ttl.Milliseconds())
	for k, v := range data {
		args = append(args, k, v)
	}
	if err := saveScript.Run(ctx, s.client, []string{s.prefix + id}, args...).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to save session, err=%w", op, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "Store.Delete"
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to delete session, err=%w", op, err)
	}
	return nil
}
