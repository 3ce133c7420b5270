// Package crawlers 实现有界的同源站点遍历
//
// # 概述
//
// 给定种子地址,Walker 在深度和页面预算范围内发现所有可达的同源页面:
// 每个页面最多访问一次,单个页面获取失败不会中断遍历。
//
// # 核心组件
//
// ## NormalizeLink / NormalizeSeed
//
// 将页面中的原始链接解析为规范地址: 协议和主机小写、去除默认端口、
// 空路径补为"/"、去除片段、保留查询串。非http(s)协议、格式错误、
// 跨源链接直接丢弃。
//
// ## Walker
//
// 显式的后进先出栈驱动深度优先遍历,子链接按文档顺序展开:
//
//	walker := NewWalker(NewStaticStrategy(FetchOptions{Timeout: 10 * time.Second}),
//	    WithPageBudget(100),
//	    WithLogger(logger),
//	)
//	result, err := walker.Crawl(ctx, "https://example.com", 2)
//
// 去重、深度检查、预算计数在同一把锁内完成,WithWorkers(n) 时多个worker
// 共享同一个栈和访问集合,结果同样满足无重复、不超深度、不超预算。
//
// ## Strategy / LinkFetcher
//
// 页面获取的边界。每次爬取 Open 一次,结束时 Close:
//   - StaticStrategy: Colly 请求页面,x/net/html 解析 <a href>
//   - DynamicStrategy: go-rod 在浏览器中加载并执行脚本,标签页由 PagePool 复用
//
// ## ResourceMonitor
//
// 基于 gopsutil 采样内存和CPU,CalculateMaxWorkers 给出并发worker数
// 和标签页数的上限:
//   - 可用内存低于阈值: 暂停创建新标签页
//   - 可用内存 < 300MB: 归还时缩减一半
//   - 可用内存 < 200MB: 缩减至1个
//
// # 错误处理
//
//   - 种子无效: 返回包装 models.ErrInvalidSeed 的错误
//   - 深度为负或预算小于1: 返回包装 models.ErrInvalidArgument 的错误
//   - 页面获取失败: 记录到 Result.Failures,不重试,继续遍历
//   - ctx 取消: 返回部分结果,Result.Cancelled 为 true
package crawlers
