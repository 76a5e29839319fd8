package service

import (
	"context"
	"encoding/json"
	"errors"
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

var (
	ErrInvalidAmount = errors.New("金额必须为正数")
	ErrSameAccount   = errors.New("不能向本人账户转账")
)

type AccountService struct {
	db              *gorm.DB
	locks           lock.Manager
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewAccountService(db *gorm.DB, locks lock.Manager, cfg *config.Config) *AccountService {
	return &AccountService{
		db:              db,
		locks:           locks,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// OperationResult 单账户资金操作的结果
type OperationResult struct {
	TransactionNo string `json:"transaction_no"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"` // 操作后余额
	Duplicate     bool   `json:"duplicate,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Deposit 存款
//
// 流程与取款一致：幂等校验 -> 账户锁 -> 锁内二次校验 ->
// 事务内（改余额 + 记流水 + 写事件），三者同成功同失败
func (s *AccountService) Deposit(ctx context.Context, userID, requestID string, amount int64) (*OperationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// 幂等校验
	if result, err := s.replayedResult(ctx, userID, requestID); result != nil || err != nil {
		return result, err
	}

	acctLock := s.locks.NewLock(lock.AccountKey(userID), requestID)
	if err := acctLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer acctLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	if result, err := s.replayedResult(ctx, userID, requestID); result != nil || err != nil {
		return result, err
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	record := &model.TransactionRecord{
		TransactionNo: idgen.GenerateTransactionNo(),
		RequestID:     requestID,
		UserID:        userID,
		Type:          model.TransactionTypeDeposit,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + amount,
		Remark:        "存款",
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Increase(ctx, tx, userID, amount); err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}
		if err := s.transactionRepo.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		if err := s.outboxRepo.Create(ctx, tx, transactionOutbox(s.cfg, record)); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("存款成功: userID=%s, amount=%d, balance=%d", userID, amount, record.BalanceAfter)

	return &OperationResult{
		TransactionNo: record.TransactionNo,
		UserID:        userID,
		Type:          record.Type,
		Amount:        amount,
		Balance:       record.BalanceAfter,
		Message:       "存款成功",
	}, nil
}

// Withdraw 取款：金额需 > 0 且不得超过余额，失败不产生任何变更
func (s *AccountService) Withdraw(ctx context.Context, userID, requestID string, amount int64) (*OperationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if result, err := s.replayedResult(ctx, userID, requestID); result != nil || err != nil {
		return result, err
	}

	acctLock := s.locks.NewLock(lock.AccountKey(userID), requestID)
	if err := acctLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer acctLock.Unlock(ctx)

	if result, err := s.replayedResult(ctx, userID, requestID); result != nil || err != nil {
		return result, err
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.Balance < amount {
		return nil, repository.ErrBalanceNotEnough
	}

	record := &model.TransactionRecord{
		TransactionNo: idgen.GenerateTransactionNo(),
		RequestID:     requestID,
		UserID:        userID,
		Type:          model.TransactionTypeWithdraw,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance - amount,
		Remark:        "取款",
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Deduct(ctx, tx, userID, amount, account.Version); err != nil {
			return err
		}
		if err := s.transactionRepo.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}
		if err := s.outboxRepo.Create(ctx, tx, transactionOutbox(s.cfg, record)); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("取款成功: userID=%s, amount=%d, balance=%d", userID, amount, record.BalanceAfter)

	return &OperationResult{
		TransactionNo: record.TransactionNo,
		UserID:        userID,
		Type:          record.Type,
		Amount:        amount,
		Balance:       record.BalanceAfter,
		Message:       "取款成功",
	}, nil
}

// GetBalance 余额查询，纯读操作
func (s *AccountService) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// History 交易记录查询，时间倒序
func (s *AccountService) History(ctx context.Context, userID string, page, pageSize int) ([]*model.TransactionRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.cfg.Business.HistoryPageSize
		if pageSize < 1 {
			pageSize = 10
		}
	}
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// replayedResult 查询 request_id 是否已执行过，是则返回当时的结果
func (s *AccountService) replayedResult(ctx context.Context, userID, requestID string) (*OperationResult, error) {
	existing, err := s.transactionRepo.GetByRequestID(ctx, userID, requestID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	return &OperationResult{
		TransactionNo: existing.TransactionNo,
		UserID:        existing.UserID,
		Type:          existing.Type,
		Amount:        existing.Amount,
		Balance:       existing.BalanceAfter,
		Duplicate:     true,
		Message:       "请求已处理，请勿重复提交",
	}, nil
}

// transactionOutbox 把一条流水封装为待投递的交易事件
func transactionOutbox(cfg *config.Config, record *model.TransactionRecord) *model.OutboxMessage {
	payload := map[string]interface{}{
		"transaction_no": record.TransactionNo,
		"user_id":        record.UserID,
		"type":           record.Type,
		"peer_id":        record.PeerID,
		"amount":         record.Amount,
		"balance_after":  record.BalanceAfter,
		"occurred_at":    time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	return &model.OutboxMessage{
		MessageKey: record.UserID,
		Topic:      cfg.Kafka.Topic.TransactionEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
}
