package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classsite/internal/models"
	"classsite/internal/services"
)

type VerifyHandler struct {
	authService services.AuthService
	exposeCodes bool
	log         logrus.FieldLogger
}

// NewVerifyHandler: exposeCodes must only be true outside production.
func NewVerifyHandler(authService services.AuthService, exposeCodes bool, log logrus.FieldLogger) *VerifyHandler {
	return &VerifyHandler{authService: authService, exposeCodes: exposeCodes, log: log.WithField("component", "verify-handler")}
}

// @Summary      Запрос кода подтверждения телефона
// @Tags         Verify
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyRequest  true  "Телефон и тип кода"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /api/auth/verify [post]
func (h *VerifyHandler) RequestCode(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Телефон обязателен"})
		return
	}
	code, err := h.authService.RequestPhoneVerification(c.Request.Context(), req.Phone, req.Type)
	if err != nil {
		respondError(c, h.log, "request verification", err)
		return
	}
	resp := gin.H{"message": "Код подтверждения отправлен"}
	if h.exposeCodes {
		resp["code"] = code
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Подтверждение телефона кодом
// @Tags         Verify
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyConfirmRequest  true  "Телефон, код и тип"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/verify [put]
func (h *VerifyHandler) ConfirmCode(c *gin.Context) {
	var req models.VerifyConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Телефон и код обязательны"})
		return
	}
	if err := h.authService.ConfirmPhoneVerification(c.Request.Context(), req.Phone, req.Code, req.Type); err != nil {
		respondError(c, h.log, "confirm verification", err)
		return
	}
	msg := "Телефон успешно подтвержден"
	if req.Type == models.PurposeTwoFactorAuth {
		msg = "Код подтвержден"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
