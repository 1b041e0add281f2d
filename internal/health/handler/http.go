package handler

import (
	"net/http"

	"go.uber.org/zap"

	"union-registry/backend/internal/platform/apierror"
)

// HTTP serves GET /healthz.
type HTTP struct {
	checker Checker
	logger  *zap.Logger
}

// NewHTTP returns the /healthz handler.
func NewHTTP(checker Checker, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{checker: checker, logger: logger}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP answers 200 when every check passes and 503 otherwise. Failure detail is logged, not returned.
func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		apierror.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	res := h.checker.Check(r.Context())
	out := healthResponse{Status: "ok", Checks: make(map[string]string, len(res))}
	code := http.StatusOK
	for name, err := range res {
		if err != nil {
			out.Checks[name] = "failing"
			out.Status = "unavailable"
			code = http.StatusServiceUnavailable
			h.logger.Warn("health: check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		out.Checks[name] = "ok"
	}
	apierror.JSON(w, code, out)
}
