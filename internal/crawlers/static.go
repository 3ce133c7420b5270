package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// colly.Context 中使用的键
const (
	ctxKeyLinks    = "links"
	ctxKeyParseErr = "parse_err"
	ctxKeyStatus   = "status"
)

// 同源重定向最多跟随次数
const maxRedirects = 10

// StaticStrategy 静态获取策略(使用Colly)
// 只请求页面本身并解析HTML,不执行脚本
type StaticStrategy struct {
	opts FetchOptions
}

// NewStaticStrategy 创建静态获取策略
func NewStaticStrategy(opts FetchOptions) *StaticStrategy {
	return &StaticStrategy{opts: opts.withDefaults()}
}

// Name 实现 Strategy
func (s *StaticStrategy) Name() models.CrawlMode {
	return models.ModeStatic
}

// Open 为一次爬取创建独立的collector
func (s *StaticStrategy) Open(ctx context.Context) (LinkFetcher, error) {
	options := []colly.CollectorOption{
		// 去重由遍历器负责
		colly.AllowURLRevisit(),
		// 非2xx状态在 OnResponse 中统一判断
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(s.opts.MaxBodySize),
		colly.StdlibContext(ctx),
	}
	if s.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(s.opts.UserAgent))
	}
	c := colly.NewCollector(options...)

	c.SetRequestTimeout(s.opts.Timeout)

	var transport *http.Transport
	if s.opts.InsecureTLS {
		transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		c.WithTransport(transport)
		s.opts.Logger.Warn().Msg("静态获取器已跳过HTTPS证书验证")
	}

	// 只跟随同源重定向
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("重定向次数过多 (%d)", len(via))
		}
		if !SameOrigin(req.URL, via[0].URL) {
			return fmt.Errorf("拒绝跨源重定向: %s -> %s", via[0].URL, req.URL)
		}
		return nil
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil && r.StatusCode != 0 {
			r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			r.Ctx.Put(ctxKeyStatus, r.StatusCode)
			return
		}

		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			r.Ctx.Put(ctxKeyParseErr, err)
			return
		}

		if !isHTMLResponse(r.Headers.Get("Content-Type"), body) {
			s.opts.Logger.Debug().Str("url", r.Request.URL.String()).Msg("非HTML响应,无链接")
			r.Ctx.Put(ctxKeyLinks, []string{})
			return
		}

		links, err := ExtractLinks(bytes.NewReader(body))
		if err != nil {
			r.Ctx.Put(ctxKeyParseErr, err)
			return
		}
		r.Ctx.Put(ctxKeyLinks, links)
	})

	return &staticFetcher{
		collector: c,
		transport: transport,
		opts:      s.opts,
	}, nil
}

// staticFetcher 单次爬取内的静态获取器
type staticFetcher struct {
	collector *colly.Collector
	transport *http.Transport
	opts      FetchOptions
}

// FetchLinks 实现 LinkFetcher
func (f *staticFetcher) FetchLinks(ctx context.Context, address string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewFetchError(address, err)
	}

	reqCtx := colly.NewContext()
	err := f.collector.Request(http.MethodGet, address, nil, reqCtx, f.opts.requestHeaders())
	if err != nil {
		fe := models.NewFetchError(address, err)
		if code, ok := reqCtx.GetAny(ctxKeyStatus).(int); ok {
			fe.StatusCode = code
			fe.Reason = models.ReasonNetwork
		}
		return nil, fe
	}

	if code, ok := reqCtx.GetAny(ctxKeyStatus).(int); ok {
		return nil, &models.FetchError{
			URL:        address,
			Reason:     models.ReasonNetwork,
			StatusCode: code,
			Err:        fmt.Errorf("HTTP %d %s", code, http.StatusText(code)),
		}
	}

	if perr, ok := reqCtx.GetAny(ctxKeyParseErr).(error); ok {
		return nil, &models.FetchError{URL: address, Reason: models.ReasonParse, Err: perr}
	}

	links, ok := reqCtx.GetAny(ctxKeyLinks).([]string)
	if !ok {
		return nil, &models.FetchError{URL: address, Reason: models.ReasonParse, Err: errors.New("响应未被处理")}
	}
	return links, nil
}

// Close 实现 LinkFetcher
func (f *staticFetcher) Close() error {
	f.collector.Wait()
	if f.transport != nil {
		f.transport.CloseIdleConnections()
	}
	return nil
}

// isHTMLResponse 根据Content-Type判断,缺失时嗅探内容
func isHTMLResponse(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml+xml")
}

// decompressResponse 根据Content-Encoding解压响应体
// colly已处理常规gzip,这里只处理仍带gzip魔数的响应体
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	default:
		// 未压缩或未知编码,按原样处理
		return body, nil
	}
}
