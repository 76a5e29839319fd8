package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atmsystem/internal/config"
	"atmsystem/internal/infrastructure/lock"
	"atmsystem/internal/model"
	"atmsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.TransactionRecord{},
		&model.OutboxMessage{},
	))

	cfg := &config.Config{}
	cfg.Business.HistoryPageSize = 10
	cfg.Kafka.Topic.TransactionEvent = "test.transaction.event"
	cfg.Security.JWTSecret = "test-secret"
	cfg.Security.TokenExpireMinute = 15
	cfg.Security.BcryptCost = bcrypt.MinCost

	return SetupRouter(db, lock.NewLocalManager(), cfg)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, authToken string, body interface{}) (int, response.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func login(t *testing.T, router *gin.Engine, userID, pin string) string {
	t.Helper()
	status, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"user_id": userID, "pin": pin,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	return data["token"].(string)
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t)

	status, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"user_id": "A1", "pin": "1111", "initial_balance": 100,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	tok := login(t, router, "A1", "1111")
	assert.NotEmpty(t, tok)
}

func TestLoginWrongPIN(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"user_id": "A1", "pin": "1111",
	})

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"user_id": "A1", "pin": "0000",
	})
	assert.Equal(t, response.CodeAuthFailed, resp.Code)

	// 账号不存在与 PIN 错误返回同样的响应码
	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"user_id": "nobody", "pin": "1111",
	})
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestMoneyEndpointsRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	status, _ := doJSON(t, router, http.MethodGet, "/api/v1/account/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, router, http.MethodPost, "/api/v1/account/deposit", "bad-token", gin.H{
		"request_id": "r1", "amount": 10,
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDepositWithdrawBalanceFlow(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"user_id": "A1", "pin": "1111", "initial_balance": 100,
	})
	tok := login(t, router, "A1", "1111")

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/account/deposit", tok, gin.H{
		"request_id": "r1", "amount": 50,
	})
	require.Equal(t, response.CodeSuccess, resp.Code)

	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/account/withdraw", tok, gin.H{
		"request_id": "r2", "amount": 200,
	})
	assert.Equal(t, response.CodeBalanceNotEnough, resp.Code)

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/account/balance", tok, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(150), data["balance"])
}

func TestTransferFlow(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"user_id": "A1", "pin": "1111", "initial_balance": 100,
	})
	doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"user_id": "A2", "pin": "2222",
	})
	tok := login(t, router, "A1", "1111")

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/account/transfer", tok, gin.H{
		"request_id": "r1", "target_id": "A2", "amount": 40,
	})
	require.Equal(t, response.CodeSuccess, resp.Code)

	// 自转被拒绝
	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/account/transfer", tok, gin.H{
		"request_id": "r2", "target_id": "A1", "amount": 10,
	})
	assert.Equal(t, response.CodeSameAccount, resp.Code)

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/account/history", tok, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	list := data["list"].([]interface{})
	require.NotEmpty(t, list)
	head := list[0].(map[string]interface{})
	assert.Equal(t, model.TransactionTypeTransferOut, head["type"])
	assert.Equal(t, "A2", head["peer_id"])
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
