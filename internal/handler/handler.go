package handler

import (
	"errors"
	"strconv"
	"time"

	"atmsystem/internal/config"
	"atmsystem/internal/infrastructure/lock"
	"atmsystem/internal/repository"
	"atmsystem/internal/service"
	"atmsystem/pkg/response"
	"atmsystem/pkg/token"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg             *config.Config
	authService     *service.AuthService
	accountService  *service.AccountService
	transferService *service.TransferService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locks lock.Manager, cfg *config.Config) *Handler {
	return &Handler{
		cfg:             cfg,
		authService:     service.NewAuthService(db, cfg),
		accountService:  service.NewAccountService(db, locks, cfg),
		transferService: service.NewTransferService(db, locks, cfg),
	}
}

// writeServiceError 把业务错误映射为统一响应码
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "账户不存在")
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, "余额不足")
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeBusinessError, "系统繁忙，请重试")
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrInvalidBalance):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrSameAccount):
		response.BusinessError(c, response.CodeSameAccount, err.Error())
	case errors.Is(err, service.ErrAccountExists):
		response.BusinessError(c, response.CodeAccountExists, err.Error())
	case errors.Is(err, service.ErrAuthFailed):
		response.BusinessError(c, response.CodeAuthFailed, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 开户与登录
// ============================================================

// RegisterRequest 开户请求
type RegisterRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	PIN            string `json:"pin" binding:"required,min=4"`
	InitialBalance int64  `json:"initial_balance"` // 可选，默认 0，单位分
}

// Register 开户
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.authService.Register(c.Request.Context(), req.UserID, req.PIN, req.InitialBalance)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"balance": account.Balance,
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PIN    string `json:"pin" binding:"required"`
}

// Login 账号 + PIN 登录，签发会话 token
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.authService.Authenticate(c.Request.Context(), req.UserID, req.PIN)
	if err != nil {
		// 账号不存在与 PIN 错误统一返回认证失败，避免账号枚举
		if errors.Is(err, repository.ErrAccountNotFound) || errors.Is(err, service.ErrAuthFailed) {
			response.BusinessError(c, response.CodeAuthFailed, "账号或 PIN 不正确")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	ttl := time.Duration(h.cfg.Security.TokenExpireMinute) * time.Minute
	sessionToken, err := token.Generate(h.cfg.Security.JWTSecret, account.UserID, ttl)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"token":   sessionToken,
		"user_id": account.UserID,
	})
}

// ============================================================
// 账户资金接口（需登录）
// ============================================================

// GetBalance 查询余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.GetString(ContextUserIDKey)

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// History 查询交易记录（最近的在前）
// GET /api/v1/account/history?page=1&page_size=10
func (h *Handler) History(c *gin.Context) {
	userID := c.GetString(ContextUserIDKey)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.accountService.History(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AmountRequest 存取款请求
type AmountRequest struct {
	RequestID string `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	Amount    int64  `json:"amount" binding:"required,gt=0"` // 金额（分）
}

// Deposit 存款
// POST /api/v1/account/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ContextUserIDKey)
	result, err := h.accountService.Deposit(c.Request.Context(), userID, req.RequestID, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// Withdraw 取款
// POST /api/v1/account/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ContextUserIDKey)
	result, err := h.accountService.Withdraw(c.Request.Context(), userID, req.RequestID, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// TransferRequest 转账请求
type TransferRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	TargetID  string `json:"target_id" binding:"required"` // 对方账号
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

// Transfer 转账
// POST /api/v1/account/transfer
//
// 【关键点】扣款、入账与双边流水在服务层的同一个数据库事务内完成，
// 任何一步失败都不会出现资金丢失或凭空产生
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ContextUserIDKey)
	result, err := h.transferService.Transfer(c.Request.Context(), userID, req.TargetID, req.RequestID, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}
