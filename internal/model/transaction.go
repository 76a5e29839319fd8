package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit     = "DEPOSIT"      // 存款
	TransactionTypeWithdraw    = "WITHDRAW"     // 取款
	TransactionTypeTransferOut = "TRANSFER_OUT" // 转出（转账的借方）
	TransactionTypeTransferIn  = "TRANSFER_IN"  // 转入（转账的贷方）
)

// ============================================================================
// 交易流水实体
// ============================================================================

// TransactionRecord 交易流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 转账的两条腿各记一条流水，PeerID 互指对方账号
type TransactionRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	RequestID     string    `gorm:"type:varchar(64);index" json:"request_id"`                    // 幂等ID，仅发起腿记录
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"user_id"`              // 账号
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                       // 交易类型
	PeerID        string    `gorm:"type:varchar(64)" json:"peer_id,omitempty"`                   // 对方账号（仅转账）
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（正数，方向由 Type 表达）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 交易后余额
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`                             // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`                      // 入库时间，由存储层赋值
}

func (TransactionRecord) TableName() string {
	return "transaction_record"
}
