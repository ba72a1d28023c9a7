package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"productcatalog/adapters/database"
	"productcatalog/api"
)

func ParseArgs() Args {
	// .env 不覆蓋已存在的環境變數
	_ = godotenv.Load()

	// server config
	pflag.String("server-url", "0.0.0.0:8080", "listen address")
	pflag.String("server-id", "catalog-1", "instance id, used as the consumer name of the reconcile worker")
	pflag.String("public-url", "http://localhost:8080", "externally visible base url, used for OIDC redirects")
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.StringSlice("categories", nil, "category names created at startup")

	// oidc config
	// 每個 provider 的設定從 oidc-<name>-issuer-url 等 key 讀取
	pflag.StringSlice("oidc-providers", nil, "enabled OIDC provider names")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "auto", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-key-prefix", "products", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Bool("s3-use-path-style", false, "")

	// db config
	pflag.String("db-driver", database.DriverPostgres, "postgres or sqlite")
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.Bool("db-debug", false, "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "", "")
	pflag.Int64("redis-stream-max-len", 10000, "")
	pflag.String("redis-consumer-group", "reconciler", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-orphans", "", "")

	// session and auth config
	pflag.String("session-cookie-name", "catalog_session", "")
	pflag.Duration("session-ttl", time.Hour, "")
	pflag.Bool("cookie-secure", true, "")
	pflag.String("auth-private-key", "", "PKCS8 PEM encoded Ed25519 key")
	pflag.String("auth-issuer", "catalog", "")
	pflag.String("auth-audience", "catalog", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// upload and worker config
	pflag.Int64("upload-max-file-size", 5<<20, "")
	pflag.Int("upload-max-files", 5, "")
	pflag.Duration("upload-request-timeout", time.Minute, "")
	pflag.Duration("worker-reconcile-timeout", 30*time.Second, "")

	// bind pflag to viper
	pflag.Parse()
	_ = viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("CATALOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	providers := make(map[string]api.OIDCProviderConfig)
	for _, name := range viper.GetStringSlice("oidc-providers") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		providers[name] = api.OIDCProviderConfig{
			IssuerURL:    viper.GetString("oidc-" + name + "-issuer-url"),
			ClientID:     viper.GetString("oidc-" + name + "-client-id"),
			ClientSecret: viper.GetString("oidc-" + name + "-client-secret"),
		}
	}

	return Args{
		ServerURL: viper.GetString("server-url"),
		LogLevel:  viper.GetString("log-level"),
		ServerConfig: api.ServerConfig{
			ID:         viper.GetString("server-id"),
			PublicURL:  strings.TrimRight(viper.GetString("public-url"), "/"),
			Categories: viper.GetStringSlice("categories"),
			OIDC: api.OIDCConfig{
				Providers: providers,
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Region:          viper.GetString("s3-region"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				KeyPrefix:       viper.GetString("s3-key-prefix"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
				UsePathStyle:    viper.GetBool("s3-use-path-style"),
			},
			DB: database.Config{
				Driver:   viper.GetString("db-driver"),
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
				Debug:    viper.GetBool("db-debug"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				StreamMaxLen:  viper.GetInt64("redis-stream-max-len"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				StreamKeys: api.RedisStreamKeys{
					Orphans: viper.GetString("redis-stream-key-for-orphans"),
				},
			},
			Session: api.SessionConfig{
				CookieName: viper.GetString("session-cookie-name"),
				TTL:        viper.GetDuration("session-ttl"),
				Secure:     viper.GetBool("cookie-secure"),
			},
			Auth: api.AuthConfig{
				PrivateKeyPEM:  viper.GetString("auth-private-key"),
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Upload: api.UploadConfig{
				MaxFileSize:    viper.GetInt64("upload-max-file-size"),
				MaxFiles:       viper.GetInt("upload-max-files"),
				RequestTimeout: viper.GetDuration("upload-request-timeout"),
			},
			Worker: api.WorkerConfig{
				ReconcileTimeout: viper.GetDuration("worker-reconcile-timeout"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	LogLevel     string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	s3 := args.ServerConfig.S3
	if args.ServerURL == "" || s3.Bucket == "" || s3.PublicBaseURL == "" || args.ServerConfig.Redis.Addr == "" {
		return false
	}
	for _, provider := range args.ServerConfig.OIDC.Providers {
		if provider.IssuerURL == "" || provider.ClientID == "" {
			return false
		}
	}
	return true
}

func (args Args) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
