package api

import (
	"time"

	"productcatalog/adapters/database"
	"productcatalog/models"
)

type ServerConfig struct {
	ID         string
	PublicURL  string
	OIDC       OIDCConfig
	S3         S3Config
	DB         database.Config
	Redis      RedisConfig
	Session    SessionConfig
	Auth       AuthConfig
	Upload     UploadConfig
	Worker     WorkerConfig
	Categories []string
}

type OIDCConfig struct {
	Providers map[string]OIDCProviderConfig
}

type OIDCProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
	KeyPrefix       string
	UsePathStyle    bool
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	KeyPrefix     string
	StreamMaxLen  int64
	ConsumerGroup string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Orphans string
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

type AuthConfig struct {
	// PrivateKeyPEM 是 PKCS8 格式的 Ed25519 私鑰，留空時每次啟動產生新的金鑰
	PrivateKeyPEM  string
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
	CookieName     string
}

type UploadConfig struct {
	MaxFileSize    int64
	MaxFiles       int
	RequestTimeout time.Duration
}

type WorkerConfig struct {
	ReconcileTimeout time.Duration
}

// applyDefaults 補上未設定的選項
func (c *ServerConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "catalog"
	}
	if c.Redis.StreamKeys.Orphans == "" {
		c.Redis.StreamKeys.Orphans = c.Redis.KeyPrefix + "catalog:orphans"
	}
	if c.Redis.ConsumerGroup == "" {
		c.Redis.ConsumerGroup = "reconciler"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "catalog_session"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = time.Hour
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "access_token"
	}
	if c.Auth.ExpireDuration <= 0 {
		c.Auth.ExpireDuration = 3 * time.Hour
	}
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = 5 << 20
	}
	if c.Upload.MaxFiles <= 0 || c.Upload.MaxFiles > models.MaxProductImages {
		c.Upload.MaxFiles = models.MaxProductImages
	}
	if c.Upload.RequestTimeout <= 0 {
		c.Upload.RequestTimeout = time.Minute
	}
	if c.Worker.ReconcileTimeout <= 0 {
		c.Worker.ReconcileTimeout = 30 * time.Second
	}
}
