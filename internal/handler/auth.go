package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/cache"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/credential"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/repository"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/utils"
)

const invalidCredentialsMsg = "邮箱或密码错误"

type AuthResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	Refresh   string       `json:"refresh"`
	ExpiresIn int          `json:"expiresIn"`
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	pair, err := h.tokens.Issue(user)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.writeJSON(w, r, status, AuthResponse{
		User:      user,
		Token:     pair.Access,
		Refresh:   pair.Refresh,
		ExpiresIn: pair.ExpiresIn,
	})
}

// authenticate 按邮箱查找用户并校验密码，需要时把旧系统的哈希迁移为本系统的哈希。
// 用户不存在、已停用或密码错误都返回 nil，不区分具体原因
func (h *Handler) authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := h.repository.GetUserByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			credential.DummyCompare(password)
			return nil, nil
		}
		return nil, err
	}

	if !user.IsActive {
		credential.DummyCompare(password)
		return nil, nil
	}

	profile, err := h.repository.GetProfileByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, err
	}

	switch credential.Verify(password, user.PasswordHash, profile.LegacyHash()) {
	case credential.AuthenticatedNative:
		return user, nil
	case credential.AuthenticatedLegacyMigrated:
		hash, err := credential.HashPassword(password)
		if errors.Is(err, credential.ErrPasswordTooLong) {
			// 旧系统接受超过 72 字节的密码，这类用户保留旧哈希继续登录
			slog.Warn("密码过长，无法迁移旧系统的哈希", "user_id", user.ID)
			return user, nil
		}
		if err != nil {
			return nil, err
		}
		if err := h.repository.SetPassword(ctx, user.ID, hash); err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		slog.Info("已将旧系统的密码哈希迁移为本系统的哈希", "user_id", user.ID)
		return user, nil
	default:
		return nil, nil
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.badRequest(w, r, errors.New("邮箱和密码不能为空"))
		return
	}

	user, err := h.authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if user == nil {
		h.unauthorized(w, r, invalidCredentialsMsg)
		return
	}

	h.issueTokens(w, r, http.StatusOK, user)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=6,bcrypt_len"`
		FirstName string `json:"first_name" validate:"max=150"`
		LastName  string `json:"last_name" validate:"max=150"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	fe := FieldErrors{}
	if err := h.validate.Struct(req); err != nil {
		fe = h.fieldErrors(err)
		if fe == nil {
			h.internalServerError(w, r, err)
			return
		}
	}

	email := utils.NormalizeEmail(req.Email)

	// 邮箱格式正确时才检查是否已被注册
	if _, ok := fe["email"]; !ok {
		isExists, err := h.repository.CheckEmailIfExists(r.Context(), email)
		if err != nil {
			h.internalServerError(w, r, err)
			return
		}
		if isExists {
			fe.Add("email", "邮箱已存在")
		}
	}

	if len(fe) > 0 {
		h.validationError(w, r, fe)
		return
	}

	hashedPassword, err := credential.HashPassword(req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	user := &domain.User{
		Username:     email,
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}

	if err := h.repository.CreateUserWithProfile(r.Context(), user, nil); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			// 并发注册同一邮箱时由唯一索引兜底
			h.validationError(w, r, FieldErrors{"email": {"邮箱已存在"}})
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 欢迎邮件发送失败不影响注册结果
	if err := h.mailer.Publish(r.Context(), domain.MailMessage{
		Type: domain.MailTypeWelcome,
		To:   user.Email,
		Data: domain.WelcomeMailData{
			FirstName: user.FirstName,
			Email:     user.Email,
		},
	}); err != nil {
		slog.Error("无法发送欢迎邮件", "user_id", user.ID, "error", err)
	}

	h.issueTokens(w, r, http.StatusCreated, user)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh" validate:"required"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	claims, err := h.tokens.ParseRefresh(req.Refresh)
	if err != nil {
		h.unauthorized(w, r, "无效的令牌")
		return
	}

	// 旧的 refresh token 只能使用一次
	claimed, err := h.cache.RevokeRefresh(r.Context(), claims.ID, time.Until(claims.ExpiresAt.Time))
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if !claimed {
		h.unauthorized(w, r, "无效的令牌")
		return
	}

	userID, _ := claims.UserID()
	user, err := h.repository.GetUserByID(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			h.unauthorized(w, r, "用户不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}
	if !user.IsActive {
		h.unauthorized(w, r, "用户已被停用")
		return
	}

	h.issueTokens(w, r, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh" validate:"required"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	claims, err := h.tokens.ParseRefresh(req.Refresh)
	if err != nil {
		h.unauthorized(w, r, "无效的令牌")
		return
	}

	// 重复登出同样视为成功
	if _, err := h.cache.RevokeRefresh(r.Context(), claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.detailResponse(w, r, "登出成功")
}

func (h *Handler) RequireResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	user, err := h.repository.GetUserByEmail(r.Context(), utils.NormalizeEmail(req.Email))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			// 这里虽然已经知道了用户不存在，但是为了安全起见，还是告诉客户端邮件已发送，以防止接口被滥用
			h.detailResponse(w, r, "重置密码所需验证码已通过邮件发送")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 生成 OTP 并将 OTP 存到 redis
	otp, err := utils.GenerateRandomOTP()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.cache.SaveOTP(r.Context(), user.Email, otp, time.Duration(h.config.OTP.Expiration)*time.Second); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 发送邮件到消息队列中
	if err := h.mailer.Publish(r.Context(), domain.MailMessage{
		Type: domain.MailTypeResetPassword,
		To:   user.Email,
		Data: domain.ResetPasswordMailData{
			FirstName:  user.FirstName,
			OTP:        otp,
			Expiration: h.config.OTP.Expiration / 60, // 邮件中显示的过期时间以分钟为单位，而配置中以秒为单位
		},
	}); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.detailResponse(w, r, "重置密码所需验证码已通过邮件发送")
}

func (h *Handler) ConfirmResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required"`
		Password string `json:"password" validate:"required,min=6,bcrypt_len"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	email := utils.NormalizeEmail(req.Email)

	// 检验 OTP
	otp, err := h.cache.GetOTP(r.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrNotFound):
			h.badRequest(w, r, errors.New("验证码错误"))
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	if subtle.ConstantTimeCompare([]byte(otp), []byte(req.OTP)) != 1 {
		h.badRequest(w, r, errors.New("验证码错误"))
		return
	}

	user, err := h.repository.GetUserByEmail(r.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			h.badRequest(w, r, errors.New("验证码错误"))
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	hashedPassword, err := credential.HashPassword(req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 新密码生效后旧系统的哈希也一并清除
	if err := h.repository.SetPassword(r.Context(), user.ID, hashedPassword); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 删除 OTP
	if err := h.cache.DeleteOTP(r.Context(), email); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.detailResponse(w, r, "重置密码成功")
}
