package snapshot

import (
	"math/big"
	"sort"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Price buckets in raw USDC (6 decimals). Lower bounds are inclusive.
var priceBuckets = []struct {
	label string
	min   int64
	max   int64
}{
	{"$0 - $0.50", 0, 500_000},
	{"$0.50 - $1", 500_000, 1_000_000},
	{"$1 - $5", 1_000_000, 5_000_000},
	{"$5 - $10", 5_000_000, 10_000_000},
	{"$10 - $25", 10_000_000, 25_000_000},
	{"$25 - $50", 25_000_000, 50_000_000},
	{"$50+", 50_000_000, 0},
}

type histogram struct {
	counts []int
}

func newHistogram() *histogram {
	return &histogram{counts: make([]int, len(priceBuckets))}
}

func (h *histogram) add(price *big.Int) {
	if i := bucketIndex(price); i >= 0 {
		h.counts[i]++
	}
}

func (h *histogram) buckets() []domain.DistributionBucket {
	out := make([]domain.DistributionBucket, len(priceBuckets))
	for i, b := range priceBuckets {
		out[i] = domain.DistributionBucket{
			Label:      b.label,
			MinUsdcRaw: b.min,
			MaxUsdcRaw: b.max,
			Count:      h.counts[i],
		}
	}
	return out
}

// bucketIndex returns the bucket of price, or -1 for a negative price.
func bucketIndex(price *big.Int) int {
	for i := len(priceBuckets) - 1; i >= 0; i-- {
		if price.Cmp(big.NewInt(priceBuckets[i].min)) >= 0 {
			return i
		}
	}
	return -1
}

func distribution(rows []row) []domain.DistributionBucket {
	h := newHistogram()
	for _, r := range rows {
		if r.price != nil {
			h.add(r.price)
		}
	}
	return h.buckets()
}

// summarize computes snapshot-wide totals and price statistics. Median and
// quartiles are rank lookups into the sorted prices.
func summarize(rows []row, window []domain.TradeEvent) domain.MarketSummary {
	sum := domain.MarketSummary{TotalTokens: len(rows)}

	volume := new(big.Int)
	var prices []*big.Int
	for _, r := range rows {
		if r.token.Trades24h > 0 {
			sum.ActiveTokens++
		}
		sum.Trades24h += r.token.Trades24h
		if v, ok := new(big.Int).SetString(r.token.Volume24hSharesRaw, 10); ok {
			volume.Add(volume, v)
		}
		if r.price != nil {
			prices = append(prices, r.price)
		}
		if r.change != nil {
			switch r.change.Sign() {
			case 1:
				sum.Gainers++
			case -1:
				sum.Losers++
			}
		}
	}
	sum.Volume24hSharesRaw = volume.String()

	if n := len(prices); n > 0 {
		sort.Slice(prices, func(i, j int) bool { return prices[i].Cmp(prices[j]) < 0 })
		total := new(big.Int)
		for _, p := range prices {
			total.Add(total, p)
		}
		sum.PricedTokens = n
		sum.AvgPriceUsdcRaw = mean(total, n)
		sum.MedianPriceUsdcRaw = prices[n/2].String()
		sum.P25PriceUsdcRaw = prices[n/4].String()
		sum.P75PriceUsdcRaw = prices[3*n/4].String()
		sum.MinPriceUsdcRaw = prices[0].String()
		sum.MaxPriceUsdcRaw = prices[n-1].String()
	}

	sum.UniqueTraders24h = uniqueTraders(window)
	return sum
}

func uniqueTraders(events []domain.TradeEvent) uint64 {
	sk := hyperloglog.New14()
	seen := false
	for _, ev := range events {
		if ev.Account != "" {
			sk.Insert([]byte(ev.Account))
			seen = true
		}
	}
	if !seen {
		return 0
	}
	return sk.Estimate()
}

// mean returns total/n rounded to an integer.
func mean(total *big.Int, n int) string {
	return decimal.NewFromBigInt(total, 0).DivRound(decimal.NewFromInt(int64(n)), 0).String()
}

type dayBucket struct {
	volume   *big.Int
	trades   int
	priceSum *big.Int
	priced   int
}

type series []dayBucket

func newSeries(days int) series {
	s := make(series, days)
	for i := range s {
		s[i] = dayBucket{volume: new(big.Int), priceSum: new(big.Int)}
	}
	return s
}

func (s series) add(i int, ev domain.TradeEvent) {
	b := &s[i]
	b.trades++
	if ev.ShareAmount != nil {
		b.volume.Add(b.volume, new(big.Int).Abs(ev.ShareAmount))
	}
	if ev.PriceUsdcPerShare != nil {
		b.priceSum.Add(b.priceSum, ev.PriceUsdcPerShare)
		b.priced++
	}
}

func (s series) points(firstDay int64) []domain.TrendPoint {
	out := make([]domain.TrendPoint, len(s))
	for i, b := range s {
		start := firstDay + int64(i)*dayMs
		p := domain.TrendPoint{
			Day:             time.UnixMilli(start).UTC().Format(time.DateOnly),
			DayStartMs:      start,
			VolumeSharesRaw: b.volume.String(),
			Trades:          b.trades,
		}
		if b.priced > 0 {
			p.AvgPriceUsdcRaw = mean(b.priceSum, b.priced)
		}
		out[i] = p
	}
	return out
}

// trends buckets trades per UTC day from the trend start through today. The
// gainers and losers series only count tokens whose price change is
// positive or negative respectively.
func trends(rows []row, events []domain.TradeEvent, trendStartMs, nowMs int64) domain.MarketTrends {
	direction := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.change != nil {
			direction[r.token.TokenIDDec] = r.change.Sign()
		}
	}

	firstDay := dayStart(trendStartMs)
	days := int((dayStart(nowMs)-firstDay)/dayMs) + 1
	all, gainers, losers := newSeries(days), newSeries(days), newSeries(days)
	for _, ev := range events {
		if ev.TimestampMs < trendStartMs || ev.TimestampMs > nowMs {
			continue
		}
		i := int((dayStart(ev.TimestampMs) - firstDay) / dayMs)
		all.add(i, ev)
		switch direction[ev.TokenID] {
		case 1:
			gainers.add(i, ev)
		case -1:
			losers.add(i, ev)
		}
	}
	return domain.MarketTrends{
		All:     all.points(firstDay),
		Gainers: gainers.points(firstDay),
		Losers:  losers.points(firstDay),
	}
}
