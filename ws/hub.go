package ws

import "sync"

// Subscriber 一条到观察者的下行通道。
// Send 失败表示连接已死，Hub 会在下一次投递时把它剔除。
type Subscriber interface {
	Send(ev any) error
}

// Hub 按 scanId 维护订阅者集合，支持并发 Attach / Detach / Broadcast。
// 锁粒度：全局锁只保护 scanId -> entry 的查找和创建，
// 成员变更在每个 entry 自己的锁里做，不同 scanId 之间互不阻塞。
type Hub struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	dead bool // 已被回收，禁止再加入成员
	subs map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{entries: make(map[string]*entry)}
}

// Attach 把订阅者挂到 scanId 下。重复 Attach 同一个订阅者是幂等的。
func (h *Hub) Attach(scanID string, s Subscriber) {
	for {
		h.mu.Lock()
		e, ok := h.entries[scanID]
		if !ok {
			e = &entry{subs: make(map[Subscriber]struct{})}
			h.entries[scanID] = e
		}
		h.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			// entry 在拿到引用后被回收了，重新来
			e.mu.Unlock()
			continue
		}
		e.subs[s] = struct{}{}
		e.mu.Unlock()
		return
	}
}

// Detach 摘掉订阅者；未挂过也可以安全调用。
// 最后一个订阅者离开时回收整个 entry。
func (h *Hub) Detach(scanID string, s Subscriber) {
	h.mu.RLock()
	e := h.entries[scanID]
	h.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	delete(e.subs, s)
	if len(e.subs) == 0 {
		e.dead = true
	}
	dead := e.dead
	e.mu.Unlock()

	if dead {
		h.mu.Lock()
		if h.entries[scanID] == e {
			delete(h.entries, scanID)
		}
		h.mu.Unlock()
	}
}

// Broadcast 把事件投递给 scanId 下的所有订阅者。
// 单个订阅者发送失败不影响其他人，也不向调用方返回错误；
// 失败的订阅者直接摘除。
func (h *Hub) Broadcast(scanID string, ev any) {
	h.mu.RLock()
	e := h.entries[scanID]
	h.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	targets := make([]Subscriber, 0, len(e.subs))
	for s := range e.subs {
		targets = append(targets, s)
	}
	e.mu.Unlock()

	var failed []Subscriber
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		h.Detach(scanID, s)
	}
}

// Count 当前挂在 scanId 下的订阅者数
func (h *Hub) Count(scanID string) int {
	h.mu.RLock()
	e := h.entries[scanID]
	h.mu.RUnlock()
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
