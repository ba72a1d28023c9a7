package session

import (
	"context"
	"fmt"
	"time"
)

// sessionImpl 在一次請求內緩存 session 資料，Save 時一次寫回
type sessionImpl struct {
	id    string
	ctx   context.Context
	ttl   time.Duration
	data  map[string]string
	dirty bool
	store IStore
}

// NewSession 建立 session，資料會在第一次 Load 時讀取
func NewSession(ctx context.Context, id string, store IStore, ttl time.Duration) ISession {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sessionImpl{
		id:    id,
		ctx:   ctx,
		ttl:   ttl,
		store: store,
	}
}

func (s *sessionImpl) ID() string {
	return s.id
}

// Load 從儲存層載入 session 資料，已載入時不重複讀取
func (s *sessionImpl) Load() error {
	const op = "sessionImpl.Load"
	if s.data != nil {
		return nil
	}
	data, err := s.store.Load(s.ctx, s.id)
	if err != nil {
		return fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}
	s.data = data
	if s.data == nil {
		s.data = make(map[string]string)
	}
	return nil
}

func (s *sessionImpl) Get(key string) string {
	if s.data == nil {
		return ""
	}
	return s.data[key]
}

func (s *sessionImpl) Set(key string, value string) {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	s.dirty = true
}

// Pop 讀取後刪除，用於只能使用一次的值 (例如 OIDC state)
func (s *sessionImpl) Pop(key string) string {
	value := s.Get(key)
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.dirty = true
	}
	return value
}

func (s *sessionImpl) Delete(key string) {
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.dirty = true
	}
}

func (s *sessionImpl) Clear() {
	s.data = make(map[string]string)
	s.dirty = true
}

// Save 只在資料有變動時寫回儲存層
func (s *sessionImpl) Save() error {
	const op = "sessionImpl.Save"
	if !s.dirty {
		return nil
	}
	if err := s.store.Save(s.ctx, s.id, s.data, s.ttl); err != nil {
		return fmt.Errorf("[%s] Fail to save session, err=%w", op, err)
	}
	s.dirty = false
	return nil
}

// Destroy 清除儲存層中的 session
func (s *sessionImpl) Destroy() error {
	const op = "sessionImpl.Destroy"
	if err := s.store.Delete(s.ctx, s.id); err != nil {
		return fmt.Errorf("[%s] Fail to destroy session, err=%w", op, err)
	}
	s.data = make(map[string]string)
	s.dirty = false
	return nil
}
