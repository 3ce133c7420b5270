package crawlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/RecoveryAshes/linkscout/internal/models"
	"github.com/rs/zerolog"
)

// fakeSite 内存中的站点,同时实现 Strategy 和 LinkFetcher
type fakeSite struct {
	mu      sync.Mutex
	links   map[string][]string
	fail    map[string]error
	openErr error
	onFetch func(address string)

	fetched []string
	opened  int
	closed  int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		links: make(map[string][]string),
		fail:  make(map[string]error),
	}
}

func (s *fakeSite) Name() models.CrawlMode { return "fake" }

func (s *fakeSite) Open(ctx context.Context) (LinkFetcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return s, nil
}

func (s *fakeSite) FetchLinks(ctx context.Context, address string) ([]string, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, address)
	hook := s.onFetch
	links, ok := s.links[address]
	err := s.fail[address]
	s.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, models.NewFetchError(address, ctxErr)
	}
	if err != nil {
		return nil, models.NewFetchError(address, err)
	}
	if !ok {
		return nil, &models.FetchError{URL: address, Reason: models.ReasonNetwork, StatusCode: 404, Err: errors.New("Not Found")}
	}
	return links, nil
}

func (s *fakeSite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSite) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetched)
}

func equalPages(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Pages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pages = %v, want %v", got, want)
		}
	}
}

func assertInvariants(t *testing.T, result *Result, seed string, budget int) {
	t.Helper()

	if len(result.Pages) == 0 || result.Pages[0] != seed {
		t.Errorf("种子应在首位: %v", result.Pages)
	}
	if len(result.Pages) > budget {
		t.Errorf("访问页面数 %d 超过预算 %d", len(result.Pages), budget)
	}

	seedURL, _ := url.Parse(seed)
	seen := make(map[string]bool)
	for _, p := range result.Pages {
		if seen[p] {
			t.Errorf("地址重复: %s", p)
		}
		seen[p] = true

		u, err := url.Parse(p)
		if err != nil || !SameOrigin(u, seedURL) {
			t.Errorf("地址与种子不同源: %s", p)
		}
	}
}

func TestWalker_MixedLinks(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "https://x.test/b#frag", "https://other.test/c", "not a url"}

	result, err := NewWalker(site, WithPageBudget(10)).Crawl(context.Background(), "https://x.test/", 1)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{"https://x.test/", "https://x.test/a", "https://x.test/b"})

	// 深度1的页面不再获取
	if n := site.fetchCount(); n != 1 {
		t.Errorf("获取次数 = %d, want 1", n)
	}
	if result.Stats.LinksSeen != 4 || result.Stats.LinksRejected != 2 {
		t.Errorf("Stats = %+v", result.Stats)
	}
}

func TestWalker_MaxDepthZero(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b"}

	result, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 0)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{"https://x.test/"})
	if n := site.fetchCount(); n != 0 {
		t.Errorf("maxDepth=0 时不应获取页面, 获取了 %d 次", n)
	}
}

func TestWalker_BudgetOne(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b"}

	result, err := NewWalker(site, WithPageBudget(1)).Crawl(context.Background(), "https://x.test/", 3)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{"https://x.test/"})
	if n := site.fetchCount(); n != 0 {
		t.Errorf("预算为1时不应获取页面, 获取了 %d 次", n)
	}
	if site.closed != 1 {
		t.Errorf("获取器应被关闭一次, closed = %d", site.closed)
	}
}

func TestWalker_SeedFetchFails(t *testing.T) {
	site := newFakeSite()
	site.fail["https://x.test/"] = errors.New("connection refused")

	result, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{"https://x.test/"})
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %v", result.Failures)
	}
	f := result.Failures[0]
	if f.URL != "https://x.test/" || f.Reason != models.ReasonNetwork || f.Depth != 0 {
		t.Errorf("Failure = %+v", f)
	}
}

func TestWalker_FaultTolerance(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b"}
	site.fail["https://x.test/a"] = context.DeadlineExceeded
	site.links["https://x.test/b"] = []string{"/c"}
	site.links["https://x.test/c"] = []string{}

	result, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 3)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{
		"https://x.test/", "https://x.test/a", "https://x.test/b", "https://x.test/c",
	})
	if len(result.Failures) != 1 || result.Failures[0].Reason != models.ReasonTimeout {
		t.Errorf("Failures = %+v", result.Failures)
	}
	if result.Stats.Failed != 1 || result.Stats.Visited != 4 {
		t.Errorf("Stats = %+v", result.Stats)
	}
}

func TestWalker_DepthFirstOrder(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b"}
	site.links["https://x.test/a"] = []string{"/a1", "/a2"}
	site.links["https://x.test/a1"] = []string{}
	site.links["https://x.test/a2"] = []string{}
	site.links["https://x.test/b"] = []string{"/b1"}
	site.links["https://x.test/b1"] = []string{}

	result, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{
		"https://x.test/", "https://x.test/a", "https://x.test/a1", "https://x.test/a2",
		"https://x.test/b", "https://x.test/b1",
	})
}

func TestWalker_FragmentAndCycles(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a#one", "/a", "/a#two", "/"}
	site.links["https://x.test/a"] = []string{"/", "/a", "https://x.test/#top"}

	result, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 5)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	equalPages(t, result.Pages, []string{"https://x.test/", "https://x.test/a"})
	if result.Stats.Duplicates == 0 {
		t.Error("应统计到重复链接")
	}
}

func TestWalker_DenseGraphBudget(t *testing.T) {
	site := newFakeSite()
	links := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		links = append(links, fmt.Sprintf("/page/%d", i))
	}
	site.links["https://x.test/"] = links

	result, err := NewWalker(site, WithPageBudget(10)).Crawl(context.Background(), "https://x.test/", 1)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(result.Pages) != 10 {
		t.Errorf("访问页面数 = %d, want 10", len(result.Pages))
	}
	if result.Stats.BudgetPruned == 0 {
		t.Error("应统计预算裁剪的条目")
	}
	assertInvariants(t, result, "https://x.test/", 10)
}

func TestWalker_SeedNormalized(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{}

	result, err := NewWalker(site).Crawl(context.Background(), "HTTPS://X.TEST:443#intro", 1)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if result.Seed != "https://x.test/" || result.Pages[0] != "https://x.test/" {
		t.Errorf("Seed = %q, Pages = %v", result.Seed, result.Pages)
	}
}

func TestWalker_InvalidArguments(t *testing.T) {
	site := newFakeSite()

	for _, seed := range []string{"", "not a url", "mailto:a@x.test", "/relative", "ftp://x.test/"} {
		result, err := NewWalker(site).Crawl(context.Background(), seed, 1)
		if !errors.Is(err, models.ErrInvalidSeed) {
			t.Errorf("Crawl(%q) error = %v, want ErrInvalidSeed", seed, err)
		}
		if result != nil {
			t.Errorf("Crawl(%q) 出错时结果应为nil", seed)
		}
	}

	if _, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", -1); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("负深度 error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewWalker(site, WithPageBudget(0)).Crawl(context.Background(), "https://x.test/", 1); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("预算为0 error = %v, want ErrInvalidArgument", err)
	}
	if site.opened != 0 {
		t.Errorf("参数无效时不应打开获取器, opened = %d", site.opened)
	}
}

func TestWalker_OpenError(t *testing.T) {
	site := newFakeSite()
	site.openErr = errors.New("browser not found")

	_, err := NewWalker(site).Crawl(context.Background(), "https://x.test/", 1)
	if err == nil {
		t.Fatal("打开获取器失败应返回错误")
	}
	if errors.Is(err, models.ErrInvalidSeed) {
		t.Error("打开失败不应被报告为种子无效")
	}
}

func TestWalker_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b", "/c"}
	site.links["https://x.test/a"] = []string{"/a1"}
	site.onFetch = func(address string) {
		if address == "https://x.test/a" {
			cancel()
		}
	}

	result, err := NewWalker(site).Crawl(ctx, "https://x.test/", 3)
	if err != nil {
		t.Fatalf("取消时不应返回错误: %v", err)
	}
	if !result.Cancelled {
		t.Error("Cancelled 应为 true")
	}
	equalPages(t, result.Pages, []string{"https://x.test/", "https://x.test/a"})
	if len(result.Failures) != 0 {
		t.Errorf("取消导致的失败不应记录: %v", result.Failures)
	}
	if site.closed != 1 {
		t.Errorf("获取器应被关闭一次, closed = %d", site.closed)
	}
}

func TestWalker_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := newFakeSite()
	result, err := NewWalker(site).Crawl(ctx, "https://x.test/", 3)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if !result.Cancelled || len(result.Pages) != 0 {
		t.Errorf("Result = %+v", result)
	}
}

func TestWalker_VisitHookAndLogger(t *testing.T) {
	site := newFakeSite()
	site.links["https://x.test/"] = []string{"/a", "/b"}
	site.fail["https://x.test/a"] = errors.New("reset by peer")
	site.links["https://x.test/b"] = []string{}

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	var visited []models.FrontierItem
	result, err := NewWalker(site,
		WithLogger(logger),
		WithVisitHook(func(item models.FrontierItem) { visited = append(visited, item) }),
	).Crawl(context.Background(), "https://x.test/", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(visited) != len(result.Pages) {
		t.Errorf("回调次数 = %d, want %d", len(visited), len(result.Pages))
	}
	if visited[1].Parent != "https://x.test/" || visited[1].Depth != 1 {
		t.Errorf("visited[1] = %+v", visited[1])
	}

	logs := buf.String()
	for _, event := range []string{"crawl_start", "page_visited", "fetch_failed", "links_accepted", "crawl_done"} {
		if !strings.Contains(logs, `"event":"`+event+`"`) {
			t.Errorf("日志中缺少事件 %s", event)
		}
	}
}

// randomSite 生成随机同源链接图,含跨域和片段链接
func randomSite(nodes, fanout int, seed int64) *fakeSite {
	r := rand.New(rand.NewSource(seed))
	site := newFakeSite()

	page := func(i int) string { return fmt.Sprintf("https://x.test/p%d", i) }

	root := make([]string, 0, fanout)
	for i := 0; i < fanout; i++ {
		root = append(root, page(i))
	}
	site.links["https://x.test/"] = root

	for i := 0; i < nodes; i++ {
		links := make([]string, 0, fanout+2)
		for j := 0; j < fanout; j++ {
			links = append(links, fmt.Sprintf("/p%d", r.Intn(nodes)))
		}
		links = append(links, "https://elsewhere.test/", fmt.Sprintf("/p%d#x", r.Intn(nodes)))
		if r.Intn(10) == 0 {
			site.fail[page(i)] = errors.New("flaky")
		}
		site.links[page(i)] = links
	}
	return site
}

func TestWalker_ConcurrentInvariants(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		budget   int
		maxDepth int
	}{
		{"单worker", 1, 50, 3},
		{"8个worker小预算", 8, 20, 4},
		{"8个worker大预算", 8, 1000, 3},
		{"16个worker", 16, 200, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := randomSite(300, 6, 42)

			var mu sync.Mutex
			depths := make(map[string]int)
			result, err := NewWalker(site,
				WithWorkers(tt.workers),
				WithPageBudget(tt.budget),
				WithVisitHook(func(item models.FrontierItem) {
					mu.Lock()
					depths[item.Address] = item.Depth
					mu.Unlock()
				}),
			).Crawl(context.Background(), "https://x.test/", tt.maxDepth)
			if err != nil {
				t.Fatalf("Crawl() error = %v", err)
			}

			assertInvariants(t, result, "https://x.test/", tt.budget)
			for _, p := range result.Pages {
				if d := depths[p]; d > tt.maxDepth {
					t.Errorf("%s 深度 %d 超过 %d", p, d, tt.maxDepth)
				}
			}
			if site.closed != 1 {
				t.Errorf("获取器应被关闭一次, closed = %d", site.closed)
			}
		})
	}
}

func TestWalker_ConcurrentCoversTree(t *testing.T) {
	// 树形站点没有交叉路径,并发和单线程访问的集合应一致
	site := newFakeSite()
	var build func(prefix string, depth int)
	build = func(prefix string, depth int) {
		if depth == 3 {
			site.links["https://x.test"+prefix] = []string{}
			return
		}
		var children []string
		for i := 0; i < 3; i++ {
			child := fmt.Sprintf("%s%d/", prefix, i)
			children = append(children, child)
			build(child, depth+1)
		}
		site.links["https://x.test"+prefix] = children
	}
	build("/", 0)

	single, err := NewWalker(site, WithPageBudget(1000)).Crawl(context.Background(), "https://x.test/", 3)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	parallel, err := NewWalker(site, WithPageBudget(1000), WithWorkers(8)).Crawl(context.Background(), "https://x.test/", 3)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	// 1 + 3 + 9 + 27
	if len(single.Pages) != 40 || len(parallel.Pages) != 40 {
		t.Fatalf("单线程 %d 页, 并发 %d 页, want 40", len(single.Pages), len(parallel.Pages))
	}
	set := make(map[string]bool)
	for _, p := range single.Pages {
		set[p] = true
	}
	for _, p := range parallel.Pages {
		if !set[p] {
			t.Errorf("并发结果包含单线程未访问的地址: %s", p)
		}
	}
}
