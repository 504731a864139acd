package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const usersSelect = "id,email,role,permissions,password_hash,primary_site_id,first_name,last_name"

// ExternalID 兼容旧系统中字符串形式（uuid）和数字形式的 id
type ExternalID string

func (id *ExternalID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ExternalID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("无法解析外部用户 id: %s", data)
	}
	*id = ExternalID(n.String())
	return nil
}

// Record 是旧身份系统中的一条用户记录
type Record struct {
	ID            ExternalID      `json:"id"`
	Email         string          `json:"email"`
	Role          *string         `json:"role"`
	Permissions   json.RawMessage `json:"permissions"`
	PasswordHash  *string         `json:"password_hash"`
	PrimarySiteID *string         `json:"primary_site_id"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
}

type ExternalServiceError struct {
	StatusCode int
	Body       string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("旧身份系统返回了非成功状态码 %d: %s", e.StatusCode, e.Body)
}

// SupabaseSource 通过 PostgREST 接口一次性拉取全部用户，不处理分页
type SupabaseSource struct {
	client    *fasthttp.Client
	url       string
	accessKey string
	timeout   time.Duration
}

func NewSupabaseSource(baseURL, accessKey string, timeout time.Duration) *SupabaseSource {
	return &SupabaseSource{
		client: &fasthttp.Client{
			Name: "account-bridge-importer",
		},
		url:       strings.TrimRight(baseURL, "/") + "/rest/v1/users?select=" + usersSelect,
		accessKey: accessKey,
		timeout:   timeout,
	}
}

type fetchResult struct {
	records []Record
	err     error
}

// FetchUsers 在 ctx 取消时立即返回，进行中的请求会在超时后自行结束
func (s *SupabaseSource) FetchUsers(ctx context.Context) ([]Record, error) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan fetchResult, 1)
	go func() {
		records, err := s.fetch(deadline)
		done <- fetchResult{records: records, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("请求旧身份系统失败: %w", ctx.Err())
	case res := <-done:
		return res.records, res.err
	}
}

func (s *SupabaseSource) fetch(deadline time.Time) ([]Record, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("apikey", s.accessKey)
	req.Header.Set("Authorization", "Bearer "+s.accessKey)
	req.Header.Set("Accept", "application/json")

	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("请求旧身份系统失败: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &ExternalServiceError{
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}

	records := make([]Record, 0)
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("无法解析旧身份系统返回的用户列表: %w", err)
	}

	return records, nil
}
