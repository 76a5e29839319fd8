package model

import (
	"time"
)

// Account 账户表
// 记录每个账户的余额，是整个系统的核心数据
//
// 金额统一使用 int64 最小货币单位（分）存储，避免浮点误差；
// 展示精度（两位小数、货币符号）由前端负责
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 账号，开户时传入
	PINHash   string    `gorm:"type:varchar(128);not null" json:"-"`                  // PIN 的 bcrypt 哈希，绝不存明文
	Balance   int64     `gorm:"not null;default:0" json:"balance"`                    // 可用余额（分），任何操作完成后必须 >= 0
	Version   int       `gorm:"not null;default:0" json:"version"`                    // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
