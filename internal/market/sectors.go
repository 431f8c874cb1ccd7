package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// SectorTotal is the summed market capitalization of one sector
type SectorTotal struct {
	Sector      string          `json:"sector"`
	Cap         decimal.Decimal `json:"cap"`
	Instruments int             `json:"instruments"`
}

// SectorTotals sums market caps per sector on one date. Totals are ordered
// by cap, largest first, then by sector name.
func SectorTotals(caps []models.MarketCapRow, date time.Time) []SectorTotal {
	day := models.TruncateDay(date)
	return aggregate(caps, func(r models.MarketCapRow) bool {
		return r.Date.Equal(day)
	})
}

// TopSectors returns the n largest sectors by cap summed over every date.
// n <= 0 returns them all.
func TopSectors(caps []models.MarketCapRow, n int) []SectorTotal {
	totals := aggregate(caps, func(models.MarketCapRow) bool { return true })
	if n > 0 && len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

// CapDates returns the distinct dates present in caps, ascending
func CapDates(caps []models.MarketCapRow) []time.Time {
	seen := make(map[time.Time]struct{})
	dates := make([]time.Time, 0)
	for _, r := range caps {
		if _, ok := seen[r.Date]; ok {
			continue
		}
		seen[r.Date] = struct{}{}
		dates = append(dates, r.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func aggregate(caps []models.MarketCapRow, keep func(models.MarketCapRow) bool) []SectorTotal {
	bySector := make(map[string]*SectorTotal)
	members := make(map[string]map[string]struct{})

	for _, r := range caps {
		if !keep(r) {
			continue
		}
		sector := r.Sector
		if sector == "" {
			sector = data.UnknownSector
		}
		t, ok := bySector[sector]
		if !ok {
			t = &SectorTotal{Sector: sector, Cap: decimal.Zero}
			bySector[sector] = t
			members[sector] = make(map[string]struct{})
		}
		t.Cap = t.Cap.Add(r.Cap)
		members[sector][r.Code] = struct{}{}
	}

	out := make([]SectorTotal, 0, len(bySector))
	for sector, t := range bySector {
		t.Instruments = len(members[sector])
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Cap.Cmp(out[j].Cap); c != 0 {
			return c > 0
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}
