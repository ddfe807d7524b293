package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "http://ip-api.com/json"
	defaultTimeout  = 3 * time.Second
)

// Resolver 登录 IP 归属地查询。
//
// 纯旁路遥测：查询失败只影响 last_login_city 字段，任何错误都
// 不得阻断登录流程，调用方应在独立 goroutine 中使用。
type Resolver struct {
	endpoint string
	client   *http.Client
}

// NewResolver 创建归属地查询器。endpoint 为空时使用 ip-api.com。
func NewResolver(endpoint string) *Resolver {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Resolver{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

type lookupResponse struct {
	Status     string `json:"status"`
	City       string `json:"city"`
	RegionName string `json:"regionName"`
}

// CityByIP 查询 IP 的城市名，无城市时退回省份名。
// 内网与回环地址不外查，直接返回 "本地"。
func (r *Resolver) CityByIP(ctx context.Context, ip string) (string, error) {
	if ip == "" {
		return "", fmt.Errorf("empty ip")
	}
	if isPrivateIP(ip) {
		return "本地", nil
	}

	url := fmt.Sprintf("%s/%s?lang=zh-CN&fields=status,city,regionName", r.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup ip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "success" {
		return "", fmt.Errorf("lookup failed for %s", ip)
	}
	if body.City != "" {
		return body.City, nil
	}
	if body.RegionName != "" {
		return body.RegionName, nil
	}
	return "", fmt.Errorf("no location for %s", ip)
}

// ClientIP 从请求头里解析真实客户端 IP。
// 依次尝试 X-Forwarded-For（取第一跳）、X-Real-IP、CF-Connecting-IP，
// 都没有时退回到连接的 RemoteAddr。
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isPrivateIP(ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast()
}
