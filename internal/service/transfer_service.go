package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"atmsystem/internal/config"
	"atmsystem/internal/infrastructure/lock"
	"atmsystem/internal/model"
	"atmsystem/internal/repository"
	"atmsystem/pkg/idgen"

	"gorm.io/gorm"
)

type TransferService struct {
	db              *gorm.DB
	locks           lock.Manager
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewTransferService(db *gorm.DB, locks lock.Manager, cfg *config.Config) *TransferService {
	return &TransferService{
		db:              db,
		locks:           locks,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// TransferResult 转账结果
type TransferResult struct {
	TransactionNo string `json:"transaction_no"`
	FromUserID    string `json:"from_user_id"`
	ToUserID      string `json:"to_user_id"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"` // 转出方操作后余额
	Duplicate     bool   `json:"duplicate,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Transfer 转账
//
// 【关键点】转账是整个系统最核心的操作，需要保证：
// 1. 原子性：扣款、入账、双边流水必须在同一个数据库事务内，
//    资金不能凭空产生，也不能凭空消失
// 2. 并发安全：按字典序对两个账户加锁，防止反向转账互相死锁
// 3. 幂等性：相同的 request_id 只会执行一次
func (s *TransferService) Transfer(ctx context.Context, fromID, toID, requestID string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}

	// 幂等校验
	if result, err := s.replayedResult(ctx, fromID, toID, requestID); result != nil || err != nil {
		return result, err
	}

	// 对两个账户按固定顺序加锁
	firstKey, secondKey := lock.SortAccountKeys(fromID, toID)
	firstLock := s.locks.NewLock(firstKey, requestID)
	if err := firstLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer firstLock.Unlock(ctx)

	secondLock := s.locks.NewLock(secondKey, requestID)
	if err := secondLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer secondLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	if result, err := s.replayedResult(ctx, fromID, toID, requestID); result != nil || err != nil {
		return result, err
	}

	// 锁内读取双方余额，作为流水的交易前快照
	fromAccount, err := s.accountRepo.GetByUserID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	toAccount, err := s.accountRepo.GetByUserID(ctx, toID)
	if err != nil {
		return nil, err
	}

	if fromAccount.Balance < amount {
		return nil, repository.ErrBalanceNotEnough
	}

	outRecord := &model.TransactionRecord{
		TransactionNo: idgen.GenerateTransactionNo(),
		RequestID:     requestID,
		UserID:        fromID,
		Type:          model.TransactionTypeTransferOut,
		PeerID:        toID,
		Amount:        amount,
		BalanceBefore: fromAccount.Balance,
		BalanceAfter:  fromAccount.Balance - amount,
		Remark:        fmt.Sprintf("转账给 %s", toID),
	}
	inRecord := &model.TransactionRecord{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        toID,
		Type:          model.TransactionTypeTransferIn,
		PeerID:        fromID,
		Amount:        amount,
		BalanceBefore: toAccount.Balance,
		BalanceAfter:  toAccount.Balance + amount,
		Remark:        fmt.Sprintf("来自 %s 的转账", fromID),
	}

	// 执行转账事务：任何一步失败整体回滚，双方余额保持原状
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Deduct(ctx, tx, fromID, amount, fromAccount.Version); err != nil {
			return err
		}
		if err := s.accountRepo.Increase(ctx, tx, toID, amount); err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}
		if err := s.transactionRepo.Create(ctx, tx, outRecord); err != nil {
			return fmt.Errorf("记录转出流水失败: %w", err)
		}
		if err := s.transactionRepo.Create(ctx, tx, inRecord); err != nil {
			return fmt.Errorf("记录转入流水失败: %w", err)
		}
		if err := s.outboxRepo.Create(ctx, tx, transactionOutbox(s.cfg, outRecord)); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("转账成功: from=%s, to=%s, amount=%d", fromID, toID, amount)

	return &TransferResult{
		TransactionNo: outRecord.TransactionNo,
		FromUserID:    fromID,
		ToUserID:      toID,
		Amount:        amount,
		Balance:       outRecord.BalanceAfter,
		Message:       "转账成功",
	}, nil
}

func (s *TransferService) replayedResult(ctx context.Context, fromID, toID, requestID string) (*TransferResult, error) {
	existing, err := s.transactionRepo.GetByRequestID(ctx, fromID, requestID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	return &TransferResult{
		TransactionNo: existing.TransactionNo,
		FromUserID:    fromID,
		ToUserID:      toID,
		Amount:        existing.Amount,
		Balance:       existing.BalanceAfter,
		Duplicate:     true,
		Message:       "请求已处理，请勿重复提交",
	}, nil
}
