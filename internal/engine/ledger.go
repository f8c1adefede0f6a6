package engine

import (
	"github.com/wxdesk/zeus-dynamic/internal/ledger"
	"github.com/wxdesk/zeus-dynamic/internal/sizing"
)

// ledgerView adapts a possibly-nil *ledger.Ledger to sizing.Ledger,
// scoped to one event day. A nil ledger (no crash-recovery store
// configured) yields a nil interface, which sizing.Sizer treats as an
// empty running total.
func ledgerView(l *ledger.Ledger, eventDay string) sizing.Ledger {
	if l == nil {
		return nil
	}
	return l.ForDay(eventDay)
}
