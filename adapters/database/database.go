package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"productcatalog/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config 是資料庫的連線設定
// Driver 為 sqlite 時只使用 Database 作為檔案路徑
type Config struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
	Debug    bool
}

// Open 依照設定建立資料庫連線
func Open(config Config) (*gorm.DB, error) {
	const op = "database.Open"
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	if config.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", config.User, config.Password, config.Host, config.Port, config.Database)
		if config.Schema != "" {
			dsn += "&search_path=" + config.Schema
			gormConfig.NamingStrategy = schema.NamingStrategy{
				TablePrefix: config.Schema + ".",
			}
		}
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(config.Database)
	default:
		return nil, fmt.Errorf("[%s] Unsupported driver %s", op, config.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, driver=%s, err=%w", op, config.Driver, err)
	}
	if config.Driver == DriverSQLite {
		// sqlite 同時只允許一個寫入者，共用單一連線避免 database is locked
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to get sql.DB, err=%w", op, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate 建立或更新所有資料表
func Migrate(db *gorm.DB) error {
	const op = "database.Migrate"
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("[%s] Fail to migrate, err=%w", op, err)
	}
	return nil
}

// Models 回傳所有需要建立資料表的 model
func Models() []any {
	return []any{
		&models.User{},
		&models.SsoProvider{},
		&models.UserIdentity{},
		&models.Category{},
		&models.Product{},
		&models.ProductImage{},
	}
}

// Ping 確認資料庫連線仍然可用
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉底層的連線池
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		slog.Warn("Fail to get sql.DB", slog.Any("error", err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Warn("Fail to close database", slog.Any("error", err))
	}
}

// translate 將 gorm 的查無資料錯誤轉換成 models.ErrNotFound
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}
