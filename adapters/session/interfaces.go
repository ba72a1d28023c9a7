//go:generate mockgen -package=session -destination=mock.go -source=interfaces.go

package session

import (
	"context"
	"time"
)

type IStore interface {
	Load(ctx context.Context, id string) (map[string]string, error)
	Save(ctx context.Context, id string, data map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type ISession interface {
	ID() string
	Load() error
	Get(key string) string
	Set(key, value string)
	Pop(key string) string
	Delete(key string)
	Clear()
	Save() error
	Destroy() error
}
