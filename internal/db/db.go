package db

import (
	"time"

	"socialchat/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Now 返回 UTC 且截断到微秒的当前时间，与 Postgres timestamp 精度一致。
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Config 是生产与测试连接共用的 gorm 配置。
func Config() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), NowFunc: Now, TranslateError: true}
}

// Connect 负责建立到 Postgres 的连接，并带有简单的重试来等待容器就绪。
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), Config())
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// Migrate 自动迁移实时通信核心涉及的全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.UserPresence{},
		&models.TokenRevocation{},
		&models.Notification{},
	)
}
