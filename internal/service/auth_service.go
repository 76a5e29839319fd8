package service

import (
	"context"
	"errors"
	"fmt"

	"atmsystem/internal/config"
	"atmsystem/internal/model"
	"atmsystem/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrAuthFailed     = errors.New("账号或 PIN 不正确")
	ErrAccountExists  = errors.New("账号已存在")
	ErrInvalidBalance = errors.New("初始余额不能为负数")
)

type AuthService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
	}
}

// Register 开户：PIN 只存 bcrypt 哈希，初始余额可选（默认 0）
func (s *AuthService) Register(ctx context.Context, userID, pin string, initialBalance int64) (*model.Account, error) {
	if initialBalance < 0 {
		return nil, ErrInvalidBalance
	}

	existing, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	cost := s.cfg.Security.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return nil, fmt.Errorf("PIN 哈希失败: %w", err)
	}

	account := &model.Account{
		UserID:  userID,
		PINHash: string(hash),
		Balance: initialBalance,
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("保存账户失败: %w", err)
	}

	return account, nil
}

// Authenticate 校验账号与 PIN。
// 比较的是 bcrypt 哈希，不做明文比对；没有锁定与限流
func (s *AuthService) Authenticate(ctx context.Context, userID, pin string) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)); err != nil {
		return nil, ErrAuthFailed
	}

	return account, nil
}
