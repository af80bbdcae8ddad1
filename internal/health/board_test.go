package health

import (
	"testing"

	"github.com/betbot/spreadarb/internal/domain"
)

func TestBoardDefaultsToDown(t *testing.T) {
	b := NewBoard()
	if s := b.GetStatus("upbit"); s != domain.VenueDown {
		t.Fatalf("unexpected status: %s", s)
	}
	b.SetStatus("upbit", domain.VenueDegraded)
	if s := b.GetStatus("upbit"); !s.Tradeable() {
		t.Fatalf("degraded must be tradeable, got %s", s)
	}
	b.SetStatus("upbit", domain.VenueFrozen)
	if b.GetStatus("upbit").Tradeable() {
		t.Fatalf("frozen must not be tradeable")
	}
	if len(b.All()) != 1 {
		t.Fatalf("expected 1 venue")
	}
}
