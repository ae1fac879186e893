package scanner

// Ledger 单次扫描内已见过的告警 id 集合。
// 随一次 orchestration 创建和销毁，由单个 goroutine 独占，不需要加锁。
type Ledger struct {
	seen map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Seen 该 id 是否已经出现过
func (l *Ledger) Seen(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Delta 返回 candidates 里没见过的 id，并把它们记为已见。
// 计算和标记是一步完成的，不存在单独 mark 造成的竞态；
// 返回顺序保持引擎报告的顺序，保证同一轮事件顺序确定。
func (l *Ledger) Delta(candidates []string) []string {
	var fresh []string
	for _, id := range candidates {
		if _, ok := l.seen[id]; ok {
			continue
		}
		l.seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

// Len 累计去重后的告警总数
func (l *Ledger) Len() int {
	return len(l.seen)
}
