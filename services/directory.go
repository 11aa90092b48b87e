package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"livescore-service/config"
	"livescore-service/logger"
)

// Directory 定义了外部目录服务的抽象接口。
// 球队/赛事/球员数据由外部系统维护,这里只做 ID 有效性校验。
type Directory interface {
	ValidTeam(ctx context.Context, teamID string) (bool, error)
	ValidEvent(ctx context.Context, eventID string) (bool, error)
	ValidPlayer(ctx context.Context, playerID string) (bool, error)
}

// HTTPDirectory 通过目录服务的 REST API 校验 ID
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPDirectory 创建 HTTPDirectory 实例
func NewHTTPDirectory(cfg *config.Config) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: cfg.DirectoryAPIURL,
		token:   cfg.DirectoryAPIToken,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidTeam 实现 Directory 接口
func (d *HTTPDirectory) ValidTeam(ctx context.Context, teamID string) (bool, error) {
	return d.exists(ctx, fmt.Sprintf("%s/teams/%s", d.baseURL, teamID))
}

// ValidEvent 实现 Directory 接口
func (d *HTTPDirectory) ValidEvent(ctx context.Context, eventID string) (bool, error) {
	return d.exists(ctx, fmt.Sprintf("%s/events/%s", d.baseURL, eventID))
}

// ValidPlayer 实现 Directory 接口
func (d *HTTPDirectory) ValidPlayer(ctx context.Context, playerID string) (bool, error) {
	return d.exists(ctx, fmt.Sprintf("%s/players/%s", d.baseURL, playerID))
}

// exists 请求目录服务,200 表示存在,404 表示不存在
func (d *HTTPDirectory) exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	// 添加认证头
	req.Header.Set("x-access-token", d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: directory request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		logger.Errorf("[Directory] Unexpected status %d from %s", resp.StatusCode, url)
		return false, fmt.Errorf("%w: directory returned status %d", ErrUnavailable, resp.StatusCode)
	}
}

// StaticDirectory 是 Directory 接口的内存实现,用于测试和本地开发。
// AllowAll 为 true 时所有 ID 都视为有效。
type StaticDirectory struct {
	AllowAll bool
	Teams    map[string]bool
	Events   map[string]bool
	Players  map[string]bool
}

// NewAllowAllDirectory 创建放行所有 ID 的目录 (开发环境)
func NewAllowAllDirectory() *StaticDirectory {
	return &StaticDirectory{AllowAll: true}
}

// ValidTeam 实现 Directory 接口
func (d *StaticDirectory) ValidTeam(ctx context.Context, teamID string) (bool, error) {
	if d.AllowAll {
		return true, nil
	}
	return d.Teams[teamID], nil
}

// ValidEvent 实现 Directory 接口
func (d *StaticDirectory) ValidEvent(ctx context.Context, eventID string) (bool, error) {
	if d.AllowAll {
		return true, nil
	}
	return d.Events[eventID], nil
}

// ValidPlayer 实现 Directory 接口
func (d *StaticDirectory) ValidPlayer(ctx context.Context, playerID string) (bool, error) {
	if d.AllowAll {
		return true, nil
	}
	return d.Players[playerID], nil
}
