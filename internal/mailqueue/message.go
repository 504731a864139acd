package mailqueue

import (
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

type mailTemplate struct {
	file    string
	subject string
}

var mailTemplates = map[string]mailTemplate{
	domain.MailTypeWelcome: {
		file:    "welcome_email.html",
		subject: "账户注册成功",
	},
	domain.MailTypeResetPassword: {
		file:    "reset_password_otp_email.html",
		subject: "重置密码验证码",
	},
}

// ErrUnsupportedType 表示消息无法被处理，重新入队也没有意义
type ErrUnsupportedType struct {
	Type string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("不支持的邮件类型: %s", e.Type)
}

func DecodeMessage(body []byte) (*domain.MailMessage, error) {
	msg := &domain.MailMessage{}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// BuildMail 根据邮件类型渲染对应的模板
func BuildMail(from, templateDir string, m *domain.MailMessage) (*mail.Msg, error) {
	mt, ok := mailTemplates[m.Type]
	if !ok {
		return nil, &ErrUnsupportedType{Type: m.Type}
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}

	tmpl, err := template.ParseFiles(filepath.Join(templateDir, mt.file))
	if err != nil {
		return nil, fmt.Errorf("无法解析邮件模板: %w", err)
	}
	if err := msg.SetBodyHTMLTemplate(tmpl, m.Data); err != nil {
		return nil, fmt.Errorf("无法设置邮件正文: %w", err)
	}
	msg.Subject(mt.subject)

	return msg, nil
}
