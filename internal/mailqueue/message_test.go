package mailqueue

import (
	"bytes"
	"errors"
	"mime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

const templateDir = "../../templates"

// subject 解码 RFC 2047 编码后的主题
func subject(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	values := msg.GetGenHeader(mail.HeaderSubject)
	require.Len(t, values, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(values[0])
	require.NoError(t, err)
	return decoded
}

func TestBuildMail_ResetPassword(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"type":"reset_password","to":"a@b.com","data":{"firstName":"Ann","otp":"123456","expiration":15}}`))
	require.NoError(t, err)

	msg, err := BuildMail("noreply@example.com", templateDir, m)
	require.NoError(t, err)

	assert.Equal(t, []string{"<a@b.com>"}, msg.GetToString())
	assert.Equal(t, "重置密码验证码", subject(t, msg))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "123456")
}

func TestBuildMail_Welcome(t *testing.T) {
	m := &domain.MailMessage{
		Type: domain.MailTypeWelcome,
		To:   "a@b.com",
		Data: map[string]any{"firstName": "", "email": "a@b.com"},
	}

	msg, err := BuildMail("noreply@example.com", templateDir, m)
	require.NoError(t, err)
	assert.Equal(t, "账户注册成功", subject(t, msg))
}

func TestBuildMail_UnsupportedType(t *testing.T) {
	_, err := BuildMail("noreply@example.com", templateDir, &domain.MailMessage{Type: "create_user", To: "a@b.com"})

	var unsupported *ErrUnsupportedType
	assert.True(t, errors.As(err, &unsupported))
}

func TestBuildMail_InvalidRecipient(t *testing.T) {
	_, err := BuildMail("noreply@example.com", templateDir, &domain.MailMessage{Type: domain.MailTypeWelcome, To: "not an address"})
	assert.Error(t, err)
}

func TestDecodeMessage_Invalid(t *testing.T) {
	_, err := DecodeMessage([]byte("{"))
	assert.Error(t, err)
}
