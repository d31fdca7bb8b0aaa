package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classsite/internal/middleware"
	"classsite/internal/models"
	"classsite/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
	cookies     CookieOptions
	log         logrus.FieldLogger
}

func NewAuthHandler(authService services.AuthService, cookies CookieOptions, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies, log: log.WithField("component", "auth-handler")}
}

// @Summary      Вход в систему
// @Description  Вход по телефону или email. Выставляет cookies token и refreshToken
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Данные для входа"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      429    {object}  map[string]string
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Логин и пароль обязательны"})
		return
	}
	res, err := h.authService.Login(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		respondError(c, h.log, "login", err)
		return
	}
	h.cookies.setSession(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message": "Вход выполнен успешно",
		"user":    res.User,
		"token":   res.AccessToken,
	})
}

// @Summary      Выход
// @Description  Отзывает refresh-сессию и очищает cookies. Всегда успешен
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refresh, _ := c.Cookie(middleware.RefreshCookie)
	_ = h.authService.Logout(c.Request.Context(), refresh)
	h.cookies.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"message": "Выход выполнен успешно"})
}

// @Summary      Обновление токенов
// @Description  Ротация refresh-токена из cookie, выдаёт новый access-токен
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh, _ := c.Cookie(middleware.RefreshCookie)
	res, err := h.authService.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.cookies.clearSession(c)
		respondError(c, h.log, "refresh", err)
		return
	}
	h.cookies.setSession(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"user": res.User, "token": res.AccessToken})
}

// @Summary      Регистрация
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        user  body      models.RegisterRequest  true  "Данные пользователя"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Пользователь успешно создан", "user": user})
}

// @Summary      Профиль текущего пользователя
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, _, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
		return
	}
	user, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, "get profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// @Summary      Обновление профиля
// @Description  Пустые поля игнорируются. Для смены пароля нужен текущий пароль
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        profile  body      models.ProfileUpdateRequest  true  "Изменения"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Router       /api/auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, _, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
		return
	}
	var req models.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "update profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Профиль успешно обновлен", "user": user})
}
