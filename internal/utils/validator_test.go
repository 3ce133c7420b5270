package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

func TestHeaderValidator_CheckName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "User-Agent", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"合法名称-下划线", "X_Api_Key", false},
		{"合法名称-token符号", "X-Trace.Id~1", false},
		{"非法名称-空格", "User Agent", true},
		{"非法名称-冒号", "X-Test:", true},
		{"非法名称-特殊字符", "User@Agent", true},
		{"非法名称-非ASCII", "头部", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.CheckName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_CheckValue(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		headerValue string
		expectError bool
	}{
		{"合法值-ASCII", "X-Test", "Mozilla/5.0", false},
		{"合法值-空字符串", "X-Test", "", false},
		{"合法值-制表符", "X-Test", "a\tb", false},
		{"合法值-边界长度", "X-Test", strings.Repeat("a", MaxHeaderValueLength), false},
		{"非法值-超长", "X-Test", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法值-控制字符", "X-Test", "value\x00with\x01null", true},
		{"非法值-换行", "X-Test", "a\r\nX-Injected: 1", true},
		{"非法值-非ASCII", "X-Test", "中文", true},
		{"编码-默认组合", "Accept-Encoding", "gzip, deflate, br", false},
		{"编码-带权重", "accept-encoding", "br;q=1.0, gzip;q=0.8, identity", false},
		{"编码-不支持", "Accept-Encoding", "gzip, zstd", true},
		{"编码-通配符", "Accept-Encoding", "*", true},
		{"编码-拒绝的编码", "Accept-Encoding", "gzip, zstd;q=0", false},
		{"编码-拒绝的通配符", "Accept-Encoding", "br, *; q=0.000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.CheckValue(tt.headerName, tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_Check(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		headerValue string
		wantReason  string
	}{
		{"合法头部", "User-Agent", "Mozilla/5.0", ""},
		{"连接层头部-Host", "Host", "example.com", "自动管理"},
		{"连接层头部-不区分大小写", "content-length", "123", "自动管理"},
		{"连接层头部-Keep-Alive", "Keep-Alive", "timeout=5", "自动管理"},
		{"范围请求", "Range", "bytes=0-99", "不完整"},
		{"条件请求", "if-none-match", `"abc"`, "不完整"},
		{"条件请求-时间", "If-Modified-Since", "Wed, 21 Oct 2015 07:28:00 GMT", "不完整"},
		{"非法名称", "User Agent", "value", "非法字符"},
		{"非法值", "User-Agent", "value\x00bad", "非法字符"},
		{"不支持的编码", "Accept-Encoding", "zstd", "zstd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Check(tt.headerName, tt.headerValue)
			if tt.wantReason == "" {
				if err != nil {
					t.Errorf("期望无错误, 实际错误=%v", err)
				}
				return
			}

			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("期望ValidationError, 得到 %v", err)
			}
			if !strings.Contains(ve.Reason, tt.wantReason) {
				t.Errorf("原因应包含 %q, 实际 %q", tt.wantReason, ve.Reason)
			}
			if ve.HeaderName != tt.headerName {
				t.Errorf("HeaderName应为 %s, 实际 %s", tt.headerName, ve.HeaderName)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	valid := http.Header{
		"User-Agent":      []string{"Mozilla/5.0"},
		"Accept":          []string{"*/*"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
	if err := validator.Validate(valid); err != nil {
		t.Errorf("期望无错误, 实际错误=%v", err)
	}

	invalid := http.Header{
		"User-Agent": []string{"value\x00bad"},
		"Range":      []string{"bytes=0-1"},
		"Host":       []string{"example.com"},
	}
	err := validator.Validate(invalid)
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("期望ValidationError, 得到 %v", err)
	}
	// 按名称排序,Host 先于 Range 和 User-Agent
	if ve.HeaderName != "Host" || ve.Suggestion == "" {
		t.Errorf("第一个错误应来自Host且带建议, 得到 %+v", ve)
	}
}
