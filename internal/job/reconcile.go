package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"atmsystem/internal/config"
	"atmsystem/internal/model"
	"atmsystem/internal/repository"

	"gorm.io/gorm"
)

// ReconcileJob 对账任务
//
// 流水表记录了每笔交易的前后余额，这是对账的依据：
// 账户当前余额必须等于最近一笔流水的 balance_after。
// 定期逐批扫描账户，发现不一致立即告警日志，供人工排查
type ReconcileJob struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
	cfg             *config.Config
	interval        time.Duration
	batchSize       int
}

func NewReconcileJob(db *gorm.DB, cfg *config.Config) *ReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		cfg:             cfg,
		interval:        interval,
		batchSize:       100,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[Reconcile] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reconcile] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// runOnce 扫描全量账户一轮，返回发现的不一致数量
func (j *ReconcileJob) runOnce(ctx context.Context) int {
	mismatch := 0
	lastID := int64(0)

	for {
		accounts, err := j.accountRepo.List(ctx, lastID, j.batchSize)
		if err != nil {
			log.Printf("[Reconcile] 查询账户失败: %v", err)
			return mismatch
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			lastID = account.ID

			latest, err := j.transactionRepo.LatestByUserID(ctx, account.UserID)
			if err != nil {
				log.Printf("[Reconcile] 查询流水失败: userID=%s, err=%v", account.UserID, err)
				continue
			}
			if latest == nil {
				// 无流水的账户余额应保持开户金额，无法进一步校验
				continue
			}

			if latest.BalanceAfter != account.Balance {
				mismatch++
				log.Printf("[Reconcile] 余额不一致: userID=%s, balance=%d, 最近流水 balance_after=%d (txn=%s)",
					account.UserID, account.Balance, latest.BalanceAfter, latest.TransactionNo)
				j.publishAlert(ctx, account.UserID, account.Balance, latest)
			}
		}
	}

	if mismatch > 0 {
		log.Printf("[Reconcile] 本轮发现 %d 处不一致", mismatch)
	}
	return mismatch
}

// publishAlert 把不一致告警写入本地消息表，由 OutboxSender 投递
func (j *ReconcileJob) publishAlert(ctx context.Context, userID string, balance int64, latest *model.TransactionRecord) {
	payload := map[string]interface{}{
		"user_id":        userID,
		"balance":        balance,
		"balance_after":  latest.BalanceAfter,
		"transaction_no": latest.TransactionNo,
		"detected_at":    time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: userID,
		Topic:      j.cfg.Kafka.Topic.BalanceAlert,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := j.outboxRepo.Create(ctx, nil, msg); err != nil {
		log.Printf("[Reconcile] 写入告警消息失败: userID=%s, err=%v", userID, err)
	}
}
