package handler

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/credential"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/token"
)

// Store 是 handler 用到的持久化操作，由 *repository.Repository 实现
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CheckEmailIfExists(ctx context.Context, email string) (bool, error)
	CreateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error
	GetProfileByUserID(ctx context.Context, userID int64) (*domain.Profile, error)
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateUser(ctx context.Context, user *domain.User) error
}

// Cache 保存验证码与已注销的 refresh token，由 *cache.RedisStore 实现
type Cache interface {
	SaveOTP(ctx context.Context, email, otp string, ttl time.Duration) error
	GetOTP(ctx context.Context, email string) (string, error)
	DeleteOTP(ctx context.Context, email string) error
	// RevokeRefresh 返回 false 表示该 token 已经被注销过
	RevokeRefresh(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type MailPublisher interface {
	Publish(ctx context.Context, msg domain.MailMessage) error
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	repository Store
	translator ut.Translator
	mailer     MailPublisher
	cache      Cache
	tokens     *token.Issuer

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo Store, mailer MailPublisher, cache Cache) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// 校验错误以 json 字段名作为键返回给客户端
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if err := registerPasswordValidation(validate, trans); err != nil {
		return nil, err
	}

	tokens := token.NewIssuer(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiration)*time.Second,
		time.Duration(cfg.JWT.RefreshExpiration)*time.Second,
	)

	return &Handler{
		validate:   validate,
		config:     cfg,
		repository: repo,
		translator: trans,
		mailer:     mailer,
		cache:      cache,
		tokens:     tokens,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 认证相关
	h.Mux.Post("/login/", h.Login)
	h.Mux.Post("/register/", h.Register)
	h.Mux.Post("/logout/", h.Logout)
	h.Mux.Post("/token/refresh/", h.RefreshToken)
	h.Mux.Route("/password-reset", func(r chi.Router) {
		r.Post("/require/", h.RequireResetPassword)
		r.Post("/confirm/", h.ConfirmResetPassword)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/me", func(r chi.Router) {
			r.Use(h.myInfo)
			r.Get("/", h.GetMyInfo)
			r.Patch("/", h.UpdateMyInfo)
			r.Patch("/password/", h.UpdateMyPassword)
		})
	})
}

// bcrypt_len 按字节限制密码长度，validator 自带的 max 按字符计算
func registerPasswordValidation(validate *validator.Validate, trans ut.Translator) error {
	if err := validate.RegisterValidation("bcrypt_len", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= credential.MaxPasswordBytes
	}); err != nil {
		return err
	}

	return validate.RegisterTranslation("bcrypt_len", trans, func(ut ut.Translator) error {
		return ut.Add("bcrypt_len", "{0}长度不能超过72个字节", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("bcrypt_len", fe.Field())
		return t
	})
}
