package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"smarttest/internal/models"
	"smarttest/pkg/auth"
	"smarttest/pkg/response"
	"smarttest/pkg/utils"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	RealName string `json:"real_name"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var user models.User
	err := h.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Unauthorized(c, "invalid username or password")
		} else {
			response.InternalServerError(c, "database query failed")
		}
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	if user.Status != 1 {
		response.Forbidden(c, "account is disabled")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, h.Cfg.JWT.ExpireHours)
	if err != nil {
		response.InternalServerError(c, "token generation failed")
		return
	}

	user.Password = ""
	response.SuccessWithMessage(c, "login successful", LoginResponse{Token: token, User: user})
}

func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var existing models.User
	if err := h.DB.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error; err == nil {
		response.Conflict(c, "username or email already exists")
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		response.InternalServerError(c, "password hashing failed")
		return
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashed,
		RealName: req.RealName,
		Status:   1,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		response.InternalServerError(c, "user creation failed")
		return
	}

	user.Password = ""
	response.SuccessWithMessage(c, "registration successful", user)
}

func (h *Handlers) GetProfile(c *gin.Context) {
	userID := c.GetUint("user_id")
	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		response.NotFound(c, "user not found")
		return
	}
	user.Password = ""
	response.Success(c, user)
}
