package crawlers

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// 协议默认端口,规范化时去除
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeLink 将页面中的原始链接规范化为地址
// base 为链接所在页面的地址,相对链接据此解析
// 返回 false 表示链接被丢弃: 空串、格式错误、非http(s)协议、跨源
func NormalizeLink(raw string, base *url.URL) (string, bool) {
	if base == nil {
		return "", false
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || hasSpaceOrControl(raw) {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	u, ok := canonicalize(base.ResolveReference(ref))
	if !ok || !SameOrigin(u, base) {
		return "", false
	}
	return u.String(), true
}

// NormalizeSeed 校验并规范化种子地址
// 返回的错误均包装 models.ErrInvalidSeed
func NormalizeSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: 地址为空", models.ErrInvalidSeed)
	}
	if hasSpaceOrControl(raw) {
		return nil, fmt.Errorf("%w: 地址包含空白或控制字符: %q", models.ErrInvalidSeed, raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSeed, err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("%w: 必须是绝对地址: %s", models.ErrInvalidSeed, raw)
	}

	u, ok := canonicalize(parsed)
	if !ok {
		return nil, fmt.Errorf("%w: 仅支持带主机名的http/https地址: %s", models.ErrInvalidSeed, raw)
	}
	return u, nil
}

// Origin 返回 scheme://host[:port],端口为默认值时省略
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + canonicalHost(scheme, u)
}

// SameOrigin 判断两个地址的协议、主机、端口是否一致
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return Origin(a) == Origin(b)
}

// canonicalize 返回规范形式的副本
func canonicalize(u *url.URL) (*url.URL, bool) {
	if u == nil || u.Opaque != "" {
		return nil, false
	}

	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	if _, ok := defaultPorts[c.Scheme]; !ok {
		return nil, false
	}
	if c.Hostname() == "" {
		return nil, false
	}

	c.Host = canonicalHost(c.Scheme, &c)
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return &c, true
}

func canonicalHost(scheme string, u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func hasSpaceOrControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return true
		}
	}
	return false
}
