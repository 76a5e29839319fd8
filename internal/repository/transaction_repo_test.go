package repository

import (
	"context"
	"testing"

	"atmsystem/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryMostRecentFirst(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	ctx := context.Background()

	for _, no := range []string{"T1", "T2", "T3"} {
		require.NoError(t, repo.Create(ctx, nil, &model.TransactionRecord{
			TransactionNo: no,
			UserID:        "A1",
			Type:          model.TransactionTypeDeposit,
			Amount:        10,
		}))
	}

	records, total, err := repo.ListByUserID(ctx, "A1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 3)
	// 依次写入 T1 T2 T3，查询必须倒序返回
	assert.Equal(t, "T3", records[0].TransactionNo)
	assert.Equal(t, "T2", records[1].TransactionNo)
	assert.Equal(t, "T1", records[2].TransactionNo)
}

func TestHistoryEmpty(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))

	records, total, err := repo.ListByUserID(context.Background(), "A1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, records)
}

func TestHistoryPagination(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, nil, &model.TransactionRecord{
			TransactionNo: string(rune('A' + i)),
			UserID:        "A1",
			Type:          model.TransactionTypeDeposit,
			Amount:        1,
		}))
	}

	page2, total, err := repo.ListByUserID(ctx, "A1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page2, 2)
	assert.Equal(t, "C", page2[0].TransactionNo)
	assert.Equal(t, "B", page2[1].TransactionNo)
}

func TestLatestByUserID(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	ctx := context.Background()

	latest, err := repo.LatestByUserID(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Create(ctx, nil, &model.TransactionRecord{
		TransactionNo: "T1", UserID: "A1", Type: model.TransactionTypeDeposit, Amount: 10, BalanceAfter: 10,
	}))
	require.NoError(t, repo.Create(ctx, nil, &model.TransactionRecord{
		TransactionNo: "T2", UserID: "A1", Type: model.TransactionTypeWithdraw, Amount: 3, BalanceAfter: 7,
	}))

	latest, err = repo.LatestByUserID(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "T2", latest.TransactionNo)
	assert.Equal(t, int64(7), latest.BalanceAfter)
}

func TestGetByRequestID(t *testing.T) {
	repo := NewTransactionRepository(newTestDB(t))
	ctx := context.Background()

	record, err := repo.GetByRequestID(ctx, "A1", "req-1")
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, repo.Create(ctx, nil, &model.TransactionRecord{
		TransactionNo: "T1", RequestID: "req-1", UserID: "A1",
		Type: model.TransactionTypeDeposit, Amount: 10,
	}))

	record, err = repo.GetByRequestID(ctx, "A1", "req-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "T1", record.TransactionNo)

	// 同一 request_id 换账户查不到，幂等范围是账户内
	record, err = repo.GetByRequestID(ctx, "A2", "req-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}
