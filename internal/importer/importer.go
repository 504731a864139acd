// Package importer 把旧身份系统中的用户一次性导入到本系统。
//
// 导入的用户没有本系统可用的密码，登录时通过 profile 中保存的旧哈希校验并迁移。
// 已存在的邮箱会被跳过，因此可以重复运行；中途失败不会回滚已经导入的用户。
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/repository"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/utils"
)

const DefaultReportPath = "imported_supabase_users.csv"

type Config struct {
	SourceURL  string
	AccessKey  string
	ReportPath string
	Timeout    time.Duration
}

// Validate 一次性列出所有缺失的必填项
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	if c.SourceURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.AccessKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}
	if len(missing) > 0 {
		return &config.ConfigurationError{Missing: missing}
	}
	return nil
}

type Source interface {
	FetchUsers(ctx context.Context) ([]Record, error)
}

type Store interface {
	CheckEmailIfExists(ctx context.Context, email string) (bool, error)
	CreateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error
}

type Summary struct {
	Fetched int
	Created int
	Skipped int
}

type Importer struct {
	source     Source
	store      Store
	reportPath string
}

// New 在发起任何网络请求之前校验配置
func New(cfg Config, store Store) (*Importer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return NewWithSource(NewSupabaseSource(cfg.SourceURL, cfg.AccessKey, timeout), store, cfg.ReportPath), nil
}

func NewWithSource(source Source, store Store, reportPath string) *Importer {
	if reportPath == "" {
		reportPath = DefaultReportPath
	}
	return &Importer{
		source:     source,
		store:      store,
		reportPath: reportPath,
	}
}

func (im *Importer) ReportPath() string {
	return im.reportPath
}

func (im *Importer) Run(ctx context.Context) (*Summary, error) {
	records, err := im.source.FetchUsers(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Fetched: len(records)}

	// 拉取成功后才覆盖报告，每导入一个用户就写入一行，中途失败时报告与数据库保持一致
	file, err := os.Create(im.reportPath)
	if err != nil {
		return summary, fmt.Errorf("无法创建导入报告: %w", err)
	}
	defer file.Close()

	report := csv.NewWriter(file)
	if err := writeRow(report, "email", "id"); err != nil {
		return summary, err
	}

	for _, record := range records {
		email := utils.NormalizeEmail(record.Email)
		if email == "" {
			summary.Skipped++
			continue
		}

		isExists, err := im.store.CheckEmailIfExists(ctx, email)
		if err != nil {
			return summary, fmt.Errorf("无法检查邮箱 %s: %w", email, err)
		}
		if isExists {
			summary.Skipped++
			continue
		}

		user, profile := toUserAndProfile(email, record)
		if err := im.store.CreateUserWithProfile(ctx, user, profile); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				// 同一批数据中邮箱仅大小写不同，或有其他进程刚刚创建了该用户
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("无法导入用户 %s: %w", email, err)
		}

		if err := writeRow(report, email, string(record.ID)); err != nil {
			return summary, err
		}
		summary.Created++
		slog.Debug("已导入用户", "email", email, "id", user.ID)
	}

	return summary, file.Sync()
}

func toUserAndProfile(email string, record Record) (*domain.User, *domain.Profile) {
	user := &domain.User{
		Username: email,
		Email:    email,
		// 不设置本系统的密码，用户需要通过旧哈希登录或者重置密码
		PasswordHash: "",
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		IsStaff:      record.Role != nil && *record.Role == "admin",
	}

	profile := &domain.Profile{
		Role:                 record.Role,
		Permissions:          record.Permissions,
		PrimarySiteID:        record.PrimarySiteID,
		OriginalPasswordHash: record.PasswordHash,
	}

	return user, profile
}

func writeRow(w *csv.Writer, fields ...string) error {
	if err := w.Write(fields); err != nil {
		return fmt.Errorf("无法写入导入报告: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("无法写入导入报告: %w", err)
	}
	return nil
}
