package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classsite/internal/models"
	"classsite/internal/services"
)

type UserHandler struct {
	service services.UserService
	log     logrus.FieldLogger
}

func NewUserHandler(service services.UserService, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{service: service, log: log.WithField("component", "user-handler")}
}

// actor aborts with 401 when the middleware did not set an identity.
func (h *UserHandler) actor(c *gin.Context) (services.Actor, bool) {
	a, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.ErrUnauthenticated.Error()})
	}
	return a, ok
}

// @Summary      Список пользователей
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Поиск по ФИО, телефону, email"
// @Param        role    query     string  false  "Роль"
// @Param        page    query     int     false  "Страница"
// @Param        limit   query     int     false  "Размер страницы"
// @Success      200     {object}  services.UserPage
// @Failure      403     {object}  map[string]string
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	page, err := h.service.ListUsers(c.Request.Context(), actor, services.UserListQuery{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 0),
	})
	if err != nil {
		respondError(c, h.log, "list users", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// @Summary      Создание пользователя
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        user  body      models.RegisterRequest  true  "Пользователь"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	user, err := h.service.CreateUser(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, h.log, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Пользователь успешно создан", "user": user})
}

// @Summary      Пользователь по ID
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID пользователя"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.log, "get user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// @Summary      Обновление пользователя
// @Description  Пустые phone/email очищают поле. Роль меняет только администратор
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                         true  "ID пользователя"
// @Param        user  body      models.AdminUserUpdateRequest  true  "Изменения"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req models.AdminUserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	user, err := h.service.UpdateUser(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, h.log, "update user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Пользователь успешно обновлен", "user": user})
}

// @Summary      Удаление пользователя
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID пользователя"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, h.log, "delete user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Пользователь успешно удален"})
}

// @Summary      История входов пользователя
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "ID пользователя"
// @Param        limit  query     int     false  "Количество записей"
// @Success      200    {object}  map[string]interface{}
// @Failure      403    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/users/{id}/login-attempts [get]
func (h *UserHandler) LoginHistory(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	attempts, err := h.service.LoginHistory(c.Request.Context(), actor, c.Param("id"), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, h.log, "login history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
