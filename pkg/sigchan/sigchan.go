package sigchan

// Chan 合并型通知：只表达“有事发生”，缓冲满时新的通知直接丢弃
type Chan struct {
	c chan struct{}
}

// New bufferSize 为可积压的通知数，通常为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 非阻塞发送
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}
