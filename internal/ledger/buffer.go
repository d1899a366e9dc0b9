package ledger

// Buffer 暂存尚无法归属到交易的成交累计，按交易对分组。
// 仅由消费协程访问。
type Buffer struct {
	pending map[string]Fills
}

// NewBuffer 创建空缓冲区。
func NewBuffer() *Buffer {
	return &Buffer{pending: make(map[string]Fills)}
}

// Ingest 将一笔成交累加到交易对的暂存量上。
func (b *Buffer) Ingest(symbol string, fills Fills) {
	b.pending[symbol] = b.pending[symbol].Merge(fills)
}

// Drain 取出并删除交易对的暂存量，不存在时 ok=false。
func (b *Buffer) Drain(symbol string) (Fills, bool) {
	fills, ok := b.pending[symbol]
	if !ok {
		return Fills{}, false
	}
	delete(b.pending, symbol)
	return fills, true
}

// Restore 在写入交易失败后放回取出的暂存量。
func (b *Buffer) Restore(symbol string, fills Fills) {
	if fills.IsZero() {
		return
	}
	b.Ingest(symbol, fills)
}

// Pending 返回有暂存量的交易对数量。
func (b *Buffer) Pending() int {
	return len(b.pending)
}
