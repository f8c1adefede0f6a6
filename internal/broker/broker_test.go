package broker

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

func acceptedTrade() domain.Trade {
	return domain.Trade{
		Decision: domain.Decision{
			Bracket:         domain.Bracket{MarketID: "m1", LowerF: 45, UpperF: 46},
			PZeus:           0.55,
			PMarket:         0.30,
			SigmaUsed:       2.0,
			Edge:            0.24,
			FKelly:          0.1,
			SizeUSD:         50,
			ReasonTags:      []domain.RejectReason{domain.ReasonStrongEdge},
			DecisionTimeUTC: time.Date(2025, 11, 19, 14, 30, 0, 0, time.UTC),
			StationCode:     "EGLC",
			EventDay:        "2025-11-19",
		},
		Venue:   "polymarket",
		Outcome: domain.OutcomePending,
	}
}

func TestRecord_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	if err := b.Record(acceptedTrade()); err != nil {
		t.Fatal(err)
	}
	if err := b.Record(acceptedTrade()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "2025-11-19", "paper_trades.csv")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 { // header + 2 rows
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, h := range Header {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %s, want %s", i, rows[0][i], h)
		}
	}
}

func TestRecord_RejectsNonAccepted(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	trade := acceptedTrade()
	trade.SizeUSD = 0
	if err := b.Record(trade); err == nil {
		t.Fatal("expected error recording a non-accepted decision")
	}
}
