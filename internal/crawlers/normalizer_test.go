package crawlers

import (
	"errors"
	"net/url"
	"testing"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestNormalizeLink(t *testing.T) {
	base := mustParse(t, "https://x.test/dir/page")

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"绝对路径", "/a", "https://x.test/a", true},
		{"相对路径", "sub", "https://x.test/dir/sub", true},
		{"上级目录", "../up", "https://x.test/up", true},
		{"去除片段", "https://x.test/b#frag", "https://x.test/b", true},
		{"仅片段", "#top", "https://x.test/dir/page", true},
		{"保留查询串", "/s?q=1&b=2", "https://x.test/s?q=1&b=2", true},
		{"主机大写", "HTTPS://X.TEST/Path", "https://x.test/Path", true},
		{"默认端口", "https://x.test:443/p", "https://x.test/p", true},
		{"空路径", "https://x.test", "https://x.test/", true},
		{"协议相对", "//x.test/c", "https://x.test/c", true},
		{"前后空白", "  /trim  ", "https://x.test/trim", true},
		{"跨域", "https://other.test/c", "", false},
		{"不同端口", "https://x.test:8443/c", "", false},
		{"不同协议", "http://x.test/c", "", false},
		{"子域名", "https://www.x.test/", "", false},
		{"非URL", "not a url", "", false},
		{"空串", "", "", false},
		{"空白", "   ", "", false},
		{"mailto", "mailto:a@x.test", "", false},
		{"javascript", "javascript:void(0)", "", false},
		{"tel", "tel:123", "", false},
		{"格式错误", "http://[::1", "", false},
		{"控制字符", "/a\x00b", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeLink(tt.raw, base)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeLink(%q) ok = %v, want %v (got %q)", tt.raw, ok, tt.wantOK, got)
			}
			if got != tt.want {
				t.Errorf("NormalizeLink(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeLink_FragmentCollapse(t *testing.T) {
	base := mustParse(t, "https://x.test/")

	a, okA := NormalizeLink("https://x.test/a#b", base)
	b, okB := NormalizeLink("https://x.test/a", base)
	if !okA || !okB {
		t.Fatalf("两个链接都应被接受: %v %v", okA, okB)
	}
	if a != b {
		t.Errorf("片段不同的地址应相等: %q != %q", a, b)
	}
}

func TestNormalizeLink_NilBase(t *testing.T) {
	if _, ok := NormalizeLink("/a", nil); ok {
		t.Error("base为nil时应拒绝")
	}
}

func TestNormalizeLink_IPv6(t *testing.T) {
	base := mustParse(t, "http://[::1]:8080/")

	got, ok := NormalizeLink("/x", base)
	if !ok || got != "http://[::1]:8080/x" {
		t.Errorf("NormalizeLink() = %q, %v", got, ok)
	}
}

func TestNormalizeSeed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"规范种子", "https://x.test/", "https://x.test/", false},
		{"补全路径", "https://X.test", "https://x.test/", false},
		{"去除片段和默认端口", "http://x.test:80/a#frag", "http://x.test/a", false},
		{"保留非默认端口", "http://x.test:8080", "http://x.test:8080/", false},
		{"空串", "", "", true},
		{"非URL", "not a url", "", true},
		{"相对地址", "/a", "", true},
		{"不支持的协议", "ftp://x.test/", "", true},
		{"缺少主机", "https:///path", "", true},
		{"opaque", "mailto:a@x.test", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSeed(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidSeed) {
					t.Errorf("NormalizeSeed(%q) error = %v, want ErrInvalidSeed", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSeed(%q) error = %v", tt.raw, err)
			}
			if got.String() != tt.want {
				t.Errorf("NormalizeSeed(%q) = %q, want %q", tt.raw, got.String(), tt.want)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://x.test/a", "https://x.test/b", true},
		{"https://x.test/a", "https://X.TEST:443/b", true},
		{"http://x.test/", "https://x.test/", false},
		{"http://x.test/", "http://x.test:8080/", false},
		{"http://x.test/", "http://y.test/", false},
	}

	for _, tt := range tests {
		if got := SameOrigin(mustParse(t, tt.a), mustParse(t, tt.b)); got != tt.want {
			t.Errorf("SameOrigin(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	if SameOrigin(nil, mustParse(t, "http://x.test/")) {
		t.Error("nil不应与任何地址同源")
	}
	if got := Origin(mustParse(t, "HTTPS://X.test:443/p?q")); got != "https://x.test" {
		t.Errorf("Origin() = %q", got)
	}
}
