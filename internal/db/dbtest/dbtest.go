// Package dbtest 提供基于内存 SQLite 的 gorm 连接，供各层单元测试复用。
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"socialchat/internal/db"
	"socialchat/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// Open 为每个测试创建独立的内存库并完成迁移，测试结束时自动关闭。
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:socialchat_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), db.Config())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// 单连接：sqlite 本身也串行化写入
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// SeedUser 插入一个测试用户并返回。
func SeedUser(t testing.TB, gdb *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{
		Username:        username,
		DisplayName:     username + " display",
		ProfilePhotoURL: "https://cdn.example/" + username + ".png",
		PasswordHash:    "x",
	}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}
