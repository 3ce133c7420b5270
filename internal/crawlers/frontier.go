package crawlers

import (
	"context"
	"sync"

	"github.com/RecoveryAshes/linkscout/internal/models"
)

// frontier 待访问条目的后进先出栈
// 多个worker共享: 栈为空且没有处理中的条目时遍历结束
type frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	items []models.FrontierItem

	// 已弹出但尚未处理完的条目数
	inFlight int

	// 关闭后 pop 立即返回 false (预算耗尽、取消或遍历结束)
	closed bool
}

func newFrontier() *frontier {
	f := &frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push 按逆序压栈,使 items[0] 最先被弹出
func (f *frontier) push(items ...models.FrontierItem) {
	if len(items) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	for i := len(items) - 1; i >= 0; i-- {
		f.items = append(f.items, items[i])
	}
	f.cond.Broadcast()
}

// pop 弹出栈顶条目,栈为空但仍有处理中条目时阻塞等待
// 返回 false 表示遍历已结束或被取消
func (f *frontier) pop(ctx context.Context) (models.FrontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed || ctx.Err() != nil {
			return models.FrontierItem{}, false
		}

		if n := len(f.items); n > 0 {
			item := f.items[n-1]
			f.items[n-1] = models.FrontierItem{}
			f.items = f.items[:n-1]
			f.inFlight++
			return item, true
		}

		if f.inFlight == 0 {
			// 无待处理也无处理中: 正常结束,唤醒其余等待者
			f.closed = true
			f.cond.Broadcast()
			return models.FrontierItem{}, false
		}

		f.cond.Wait()
	}
}

// done 标记一个弹出的条目处理完毕
func (f *frontier) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	if f.inFlight == 0 {
		f.cond.Broadcast()
	}
}

// close 停止遍历并唤醒所有阻塞的 pop
func (f *frontier) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// pending 返回栈中剩余条目数
func (f *frontier) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
