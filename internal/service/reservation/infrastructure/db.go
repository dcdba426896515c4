// internal/service/reservation/infrastructure/db.go
package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMySQL 建立进程级的 MySQL 连接。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// Migrate 同步表结构。生产环境由迁移脚本负责，这里服务于本地与测试环境。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ProductModel{}, &ReservationModel{}, &SettlementJobModel{})
}
