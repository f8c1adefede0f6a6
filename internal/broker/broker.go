// Package broker is the Paper Broker (C9): it appends accepted
// Decisions to a per-event-day CSV trade log, per spec.md §4.5 and the
// stable header in §6.
package broker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

// Header is the stable column order of the paper trade log (§6). New
// columns must be appended, never inserted, to keep old files parseable.
var Header = []string{
	"timestamp", "station_code", "bracket_name", "bracket_lower_f", "bracket_upper_f",
	"market_id", "edge", "edge_pct", "f_kelly", "size_usd", "p_zeus", "p_mkt",
	"sigma_z", "reason", "outcome", "realized_pnl", "venue", "resolved_at", "winner_bracket",
}

// Broker appends Trades to RootDir/{event_day}/paper_trades.csv.
type Broker struct {
	RootDir string
	mu      sync.Mutex // serializes writers within this process
	now     func() time.Time
}

// New creates a Broker rooted at dir.
func New(dir string) *Broker {
	return &Broker{RootDir: dir, now: time.Now}
}

// Record appends one accepted trade to its event day's log, creating
// the file and writing the header if it doesn't exist yet. The
// underlying file descriptor is held under an exclusive advisory lock
// for the duration of the append so two processes sharing RootDir never
// interleave partial rows.
func (b *Broker) Record(t domain.Trade) error {
	if !t.Accepted() {
		return fmt.Errorf("broker: refusing to record a non-accepted decision for %s", t.Bracket.MarketID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Join(b.RootDir, t.EventDay)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("broker: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "paper_trades.csv")

	needsHeader := !fileExists(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("broker: open %s: %w", path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("broker: lock %s: %w", path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("broker: write header: %w", err)
		}
	}
	if err := w.Write(row(t)); err != nil {
		return fmt.Errorf("broker: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("broker: flush: %w", err)
	}
	return f.Sync()
}

func row(t domain.Trade) []string {
	resolvedAt := ""
	if t.ResolvedAt != nil {
		resolvedAt = t.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		t.DecisionTimeUTC.UTC().Format(time.RFC3339),
		t.StationCode,
		t.Bracket.Label(),
		f64(t.Bracket.LowerF),
		f64(t.Bracket.UpperF),
		t.Bracket.MarketID,
		f64(t.Edge),
		f64(t.Edge * 100),
		f64(t.FKelly),
		f64(t.SizeUSD),
		f64(t.PZeus),
		f64(t.PMarket),
		f64(t.SigmaUsed),
		reasonList(t.ReasonTags),
		string(t.Outcome),
		f64(t.RealizedPnL),
		t.Venue,
		resolvedAt,
		t.WinnerBracket,
	}
}

func reasonList(reasons []domain.RejectReason) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ";"
		}
		out += string(r)
	}
	return out
}

func f64(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
