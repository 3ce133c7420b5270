package utils

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

// headerRule 对某个头部的限制
type headerRule struct {
	reason     string
	suggestion string
}

var (
	// 连接层头部,由HTTP客户端或浏览器生成
	transportHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
		"Keep-Alive",
		"Proxy-Connection",
		"Upgrade",
		"Te",
		"Trailer",
	}

	// 条件请求和范围请求会得到304或部分响应,页面链接提取不完整
	partialHeaders = []string{
		"Range",
		"If-Range",
		"If-Match",
		"If-None-Match",
		"If-Modified-Since",
		"If-Unmodified-Since",
	}

	// SupportedEncodings 静态策略能解码的内容编码
	SupportedEncodings = []string{"gzip", "deflate", "br", "identity"}
)

// HeaderValidator 检查自定义请求头是否可以用于爬取
type HeaderValidator struct {
	rules          map[string]headerRule
	encodings      map[string]bool
	maxValueLength int
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	rules := make(map[string]headerRule, len(transportHeaders)+len(partialHeaders))
	for _, name := range transportHeaders {
		rules[http.CanonicalHeaderKey(name)] = headerRule{
			reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	}
	for _, name := range partialHeaders {
		rules[http.CanonicalHeaderKey(name)] = headerRule{
			reason:     "条件或范围请求会返回不完整的页面",
			suggestion: fmt.Sprintf("移除 '%s' 头部,爬取需要完整响应", name),
		}
	}

	encodings := make(map[string]bool, len(SupportedEncodings))
	for _, e := range SupportedEncodings {
		encodings[e] = true
	}

	return &HeaderValidator{
		rules:          rules,
		encodings:      encodings,
		maxValueLength: MaxHeaderValueLength,
	}
}

// CheckName 头部名称必须是RFC 7230 token
func (hv *HeaderValidator) CheckName(name string) error {
	if name == "" {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称不能为空",
		}
	}

	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return &models.ValidationError{
				Field:      "name",
				HeaderName: name,
				Reason:     fmt.Sprintf("头部名称包含非法字符 %q", name[i]),
				Suggestion: "使用字母、数字和连字符 (如 'User-Agent', 'X-Custom-Header')",
			}
		}
	}
	return nil
}

// CheckValue 头部值只能包含可打印ASCII、空格和制表符
func (hv *HeaderValidator) CheckValue(name, value string) error {
	if len(value) > hv.maxValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), hv.maxValueLength),
			Suggestion: fmt.Sprintf("将值缩短至 %d 字节以内", hv.maxValueLength),
		}
	}

	for i := 0; i < len(value); i++ {
		if c := value[i]; c != '\t' && (c < 0x20 || c > 0x7e) {
			return &models.ValidationError{
				Field:      "value",
				HeaderName: name,
				Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
				Suggestion: "移除控制字符和非ASCII字符",
			}
		}
	}

	if http.CanonicalHeaderKey(name) == "Accept-Encoding" {
		return hv.checkEncodings(name, value)
	}
	return nil
}

// checkEncodings 拒绝静态策略无法解码的编码,q=0 的条目不参与判断
func (hv *HeaderValidator) checkEncodings(name, value string) error {
	for _, item := range strings.Split(value, ",") {
		coding, params, _ := strings.Cut(item, ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding == "" || hv.encodings[coding] || qualityZero(params) {
			continue
		}
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("不支持的内容编码: %s", coding),
			Suggestion: fmt.Sprintf("只使用 %s", strings.Join(SupportedEncodings, ", ")),
		}
	}
	return nil
}

// Check 验证单个头部
func (hv *HeaderValidator) Check(name, value string) error {
	if rule, ok := hv.rules[http.CanonicalHeaderKey(name)]; ok {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     rule.reason,
			Suggestion: rule.suggestion,
		}
	}
	if err := hv.CheckName(name); err != nil {
		return err
	}
	return hv.CheckValue(name, value)
}

// Validate 按名称顺序验证所有头部,返回第一个ValidationError
func (hv *HeaderValidator) Validate(headers http.Header) error {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range headers[name] {
			if err := hv.Check(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// qualityZero 参数是否为 q=0,即客户端拒绝该编码
func qualityZero(params string) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(params), "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(key), "q") {
		return false
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return err == nil && q == 0
}

// isTokenChar RFC 7230 tchar
func isTokenChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
