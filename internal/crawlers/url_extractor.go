package crawlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractLinksJS 在页面中执行,返回所有 a[href] 的原始属性值
// 使用 getAttribute 而不是 .href,保持与静态解析一致的原始值
const extractLinksJS = `() => {
	var result = [];
	var anchors = document.querySelectorAll('a[href]');
	for (var i = 0; i < anchors.length; i++) {
		var href = anchors[i].getAttribute('href');
		if (href !== null) {
			result.push(href);
		}
	}
	return result;
}`

// ExtractLinks 从HTML文档中提取 <a href> 的原始值,按文档顺序
// 不做解析和过滤,由 NormalizeLink 统一处理
func ExtractLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Namespace == "" && strings.EqualFold(attr.Key, "href") {
					links = append(links, attr.Val)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// extractFromPage 在已加载的rod页面中执行脚本提取链接
func extractFromPage(page *rod.Page) ([]string, error) {
	result, err := page.Evaluate(rod.Eval(extractLinksJS))
	if err != nil {
		return nil, fmt.Errorf("执行JavaScript提取链接失败: %w", err)
	}

	arr := result.Value.Arr()
	links := make([]string, 0, len(arr))
	for _, item := range arr {
		links = append(links, item.Str())
	}
	return links, nil
}
