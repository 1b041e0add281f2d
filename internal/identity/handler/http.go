// Package handler exposes the verification service over HTTP.
package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"union-registry/backend/internal/identity/domain"
	"union-registry/backend/internal/identity/service"
	"union-registry/backend/internal/platform/apierror"
)

// VerificationService is the subset of service.VerificationService used by the handler.
type VerificationService interface {
	RequestCode(ctx context.Context, phone, nationalID string) (*service.CodeResult, error)
	VerifyCode(ctx context.Context, phone, code string) (*service.AuthResult, error)
	AdminLogin(ctx context.Context, phone, nationalID string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	DevCode(ctx context.Context, phone string) (string, bool)
}

// Handler serves the SMS verification, admin login and refresh endpoints.
type Handler struct {
	svc    VerificationService
	logger *zap.Logger
}

// NewHandler returns a Handler. When svc is nil every endpoint answers 501.
func NewHandler(svc VerificationService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

var errorRules = []apierror.Rule{
	{Err: domain.ErrInvalidPhone, Status: http.StatusBadRequest},
	{Err: domain.ErrInvalidNationalID, Status: http.StatusBadRequest},
	{Err: service.ErrCodeInvalidOrExpired, Status: http.StatusBadRequest},
	{Err: service.ErrConflict, Status: http.StatusConflict},
	{Err: service.ErrRateLimited, Status: http.StatusTooManyRequests},
	{Err: service.ErrInvalidCredentials, Status: http.StatusUnauthorized},
	{Err: service.ErrInvalidRefreshToken, Status: http.StatusUnauthorized},
}

type sendSMSRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	NationalID  string `json:"nationalId"`
}

type sendSMSResponse struct {
	Message   string `json:"message"`
	DebugCode string `json:"debug_code,omitempty"`
}

// SendSMS handles POST /api/send-sms.
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req sendSMSRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	res, err := h.svc.RequestCode(r.Context(), req.PhoneNumber, req.NationalID)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, sendSMSResponse{Message: "verification code sent", DebugCode: res.DebugCode})
}

type verifySMSRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	SMSCode     string `json:"smsCode"`
}

type verifySMSResponse struct {
	Message string `json:"message"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// VerifySMS handles POST /api/verify-sms.
func (h *Handler) VerifySMS(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req verifySMSRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), req.PhoneNumber, req.SMSCode)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, verifySMSResponse{
		Message: "phone number verified",
		Access:  res.Tokens.Access,
		Refresh: res.Tokens.Refresh,
	})
}

type adminLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	NationalID  string `json:"national_id"`
}

type tokensBody struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type adminLoginResponse struct {
	Tokens tokensBody `json:"tokens"`
}

// AdminLogin handles POST /api/admin-login.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req adminLoginRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	res, err := h.svc.AdminLogin(r.Context(), req.PhoneNumber, req.NationalID)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, adminLoginResponse{
		Tokens: tokensBody{Access: res.Tokens.Access, Refresh: res.Tokens.Refresh},
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req refreshRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.Refresh)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, tokensBody{Access: res.Tokens.Access, Refresh: res.Tokens.Refresh})
}

type devCodeResponse struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// DevVerificationCode handles GET /dev/verification-code?phone=. Only mounted in dev mode.
func (h *Handler) DevVerificationCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	phone := r.URL.Query().Get("phone")
	code, ok := h.svc.DevCode(r.Context(), phone)
	if !ok {
		apierror.Message(w, http.StatusNotFound, "no verification code for phone")
		return
	}
	apierror.JSON(w, http.StatusOK, devCodeResponse{PhoneNumber: phone, Code: code})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.svc == nil {
		apierror.Message(w, http.StatusNotImplemented, "verification not configured")
		return false
	}
	return true
}
