package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"diary/internal/auth"
	"diary/internal/db/dialect"
	domainerrors "diary/internal/errors"
	"diary/internal/http/response"
	"diary/internal/validation"
)

var errBadCredentials = domainerrors.Unauthorized("invalid credentials")

type AuthHandler struct {
	DB        *gorm.DB
	JWT       *auth.JWT
	Validator *validation.Validator
	Log       *slog.Logger
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenDTO struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(w, r, &req); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := h.Validator.Validate(req); err != nil {
		fail(h.Log, w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}

	u := auth.User{Email: req.Email, PasswordHash: hash}
	if err := h.DB.WithContext(r.Context()).Create(&u).Error; err != nil {
		if dialect.IsUniqueViolation(err) {
			err = domainerrors.Conflict("email already used")
		}
		fail(h.Log, w, r, err)
		return
	}

	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.Created(w, tokenDTO{Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(w, r, &req); err != nil {
		fail(h.Log, w, r, err)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := h.Validator.Validate(req); err != nil {
		fail(h.Log, w, r, err)
		return
	}

	var u auth.User
	err := h.DB.WithContext(r.Context()).Where("email = ?", req.Email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(h.Log, w, r, errBadCredentials)
		return
	}
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	if !auth.ComparePassword(u.PasswordHash, req.Password) {
		fail(h.Log, w, r, errBadCredentials)
		return
	}

	token, err := h.JWT.Sign(u.ID)
	if err != nil {
		fail(h.Log, w, r, err)
		return
	}
	response.OK(w, tokenDTO{Token: token})
}
