package models

// FrontierItem 表示待遍历的一个页面地址
// 用途:
//   - 由Walker在接受链接时创建,只被消费一次
//   - 创建后不再修改
type FrontierItem struct {
	// Address 规范化后的绝对URL
	Address string

	// Depth 距离种子页面的跳数
	//   - 0: 种子URL
	//   - 1: 从种子页面发现的链接
	//   - 以此类推...
	Depth int

	// Parent 发现此地址的页面(种子为空,用于调试)
	Parent string
}
