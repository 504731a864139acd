package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type DatabaseConfig struct {
	DSN                string `env:"DSN,required"`
	ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
	QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
	TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
	MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	AutoMigrate        bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	JWT      struct {
		AccessExpiration  int    `env:"ACCESS_EXPIRATION" envDefault:"3600"`     // 1 小时
		RefreshExpiration int    `env:"REFRESH_EXPIRATION" envDefault:"1209600"` // 14 天
		Secret            string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Email struct {
		SMTP struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
		TemplateDir string `env:"TEMPLATE_DIR" envDefault:"./templates"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		Queue          string `env:"QUEUE" envDefault:"email_queue"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
	} `envPrefix:"REDIS_"`
	OTP struct {
		Expiration int `env:"EXPIRATION" envDefault:"900"` // 15 分钟
	} `envPrefix:"OTP_"`
}

// ImportConfig 只包含导入任务需要的配置，导入任务不依赖 JWT、SMTP 等配置
type ImportConfig struct {
	Database       DatabaseConfig `envPrefix:"DATABASE_"`
	SourceURL      string         `env:"SUPABASE_URL,notEmpty"`
	AccessKey      string         `env:"SUPABASE_SERVICE_ROLE_KEY,notEmpty"`
	ReportPath     string         `env:"IMPORT_REPORT_PATH" envDefault:"imported_supabase_users.csv"`
	RequestTimeout int            `env:"IMPORT_REQUEST_TIMEOUT" envDefault:"30"`
}

// ConfigurationError 列出所有缺失的必填配置项
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("缺少必要的配置项: %s", strings.Join(e.Missing, ", "))
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadImportConfig() (*ImportConfig, error) {
	cfg := &ImportConfig{}
	if err := parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parse(v any) error {
	err := env.Parse(v)
	if err == nil {
		return nil
	}

	aggErr := env.AggregateError{}
	if !errors.As(err, &aggErr) {
		return err
	}

	missing := make([]string, 0, len(aggErr.Errors))
	for _, e := range aggErr.Errors {
		var notSet env.VarIsNotSetError
		if errors.As(e, &notSet) {
			missing = append(missing, notSet.Key)
			continue
		}
		var empty env.EmptyVarError
		if errors.As(e, &empty) {
			missing = append(missing, empty.Key)
			continue
		}
		// 只返回第一个非缺失类错误使得日志更清晰
		return e
	}

	return &ConfigurationError{Missing: missing}
}
