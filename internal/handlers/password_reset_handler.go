package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classsite/internal/models"
	"classsite/internal/services"
)

type PasswordResetHandler struct {
	resets      services.PasswordResetService
	exposeCodes bool
	log         logrus.FieldLogger
}

func NewPasswordResetHandler(resets services.PasswordResetService, exposeCodes bool, log logrus.FieldLogger) *PasswordResetHandler {
	return &PasswordResetHandler{resets: resets, exposeCodes: exposeCodes, log: log.WithField("component", "reset-handler")}
}

// @Summary      Запрос кода восстановления пароля
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.PhoneRequest  true  "Телефон"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/reset-password [post]
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req models.PhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Телефон обязателен"})
		return
	}
	code, err := h.resets.RequestReset(c.Request.Context(), req.Phone)
	if err != nil {
		respondError(c, h.log, "request reset", err)
		return
	}
	resp := gin.H{"message": "Код восстановления отправлен на ваш телефон"}
	if h.exposeCodes {
		resp["code"] = code
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Смена пароля по коду
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.PasswordResetConfirmRequest  true  "Телефон, код и новый пароль"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/reset-password [put]
func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req models.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Телефон, код и новый пароль обязательны"})
		return
	}
	if err := h.resets.ResetPassword(c.Request.Context(), req); err != nil {
		respondError(c, h.log, "reset password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Пароль успешно изменен"})
}
