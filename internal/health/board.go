package health

import (
	"sync"

	"github.com/betbot/spreadarb/internal/domain"
)

// Board 交易所健康状态看板：外部遥测写入，风控/执行读取。
// 未登记的交易所视为 down。
type Board struct {
	mu     sync.RWMutex
	status map[string]domain.VenueStatus
}

func NewBoard() *Board {
	return &Board{status: make(map[string]domain.VenueStatus)}
}

func (b *Board) SetStatus(venueID string, s domain.VenueStatus) {
	b.mu.Lock()
	b.status[venueID] = s
	b.mu.Unlock()
}

func (b *Board) GetStatus(venueID string) domain.VenueStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.status[venueID]; ok {
		return s
	}
	return domain.VenueDown
}

// All 返回所有交易所的当前状态
func (b *Board) All() map[string]domain.VenueStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.VenueStatus, len(b.status))
	for k, v := range b.status {
		out[k] = v
	}
	return out
}
