package prices

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cacheCapacity bounds the number of distinct queries retained per shape
// (history keys and panel keys are tracked in separate LRU rings).
const cacheCapacity = 128

// Cached wraps a Repository with a process-wide, bounded LRU plus
// per-key fill locks (golang.org/x/sync/singleflight), satisfying the
// memoization requirement: identical calls in one backtest — and across
// concurrent backtests sharing this instance — do not re-fetch while the
// entry is retained, and a cache miss for a given key is only ever served
// by one upstream call at a time. Every cache lookup takes the single
// mutex mu (an LRU hit reorders the ring), so lookups do not run in
// parallel with each other; upstream fetches run outside mu and are
// coalesced per key.
type Cached struct {
	inner Repository

	group singleflight.Group

	mu       sync.Mutex
	history  *lru
	panel    *lru
	earliest *lru
	calendar []time.Time
	haveCal  bool
}

// NewCached returns a Repository backed by inner with an LRU+singleflight
// memoization layer.
func NewCached(inner Repository) *Cached {
	return &Cached{
		inner:    inner,
		history:  newLRU(cacheCapacity),
		panel:    newLRU(cacheCapacity),
		earliest: newLRU(cacheCapacity),
	}
}

func historyKey(symbol string, asOf time.Time) string {
	return symbol + "|" + asOf.Format("2006-01-02")
}

func panelKey(symbols []string, start, end time.Time) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + "|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
}

func (c *Cached) History(symbol string, asOf time.Time) ([]Bar, error) {
	key := historyKey(symbol, asOf)

	c.mu.Lock()
	if v, ok := c.history.get(key); ok {
		c.mu.Unlock()
		return v.([]Bar), nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("history:"+key, func() (interface{}, error) {
		return c.inner.History(symbol, asOf)
	})
	if err != nil {
		return nil, err
	}
	bars := v.([]Bar)

	c.mu.Lock()
	c.history.put(key, bars)
	c.mu.Unlock()

	return bars, nil
}

func (c *Cached) Panel(symbols []string, start, end time.Time) (*Panel, error) {
	key := panelKey(symbols, start, end)

	c.mu.Lock()
	if v, ok := c.panel.get(key); ok {
		c.mu.Unlock()
		return v.(*Panel), nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("panel:"+key, func() (interface{}, error) {
		return c.inner.Panel(symbols, start, end)
	})
	if err != nil {
		return nil, err
	}
	pnl := v.(*Panel)

	c.mu.Lock()
	c.panel.put(key, pnl)
	c.mu.Unlock()

	return pnl, nil
}

func (c *Cached) EarliestDate(symbol string) (time.Time, bool, error) {
	c.mu.Lock()
	if v, ok := c.earliest.get(symbol); ok {
		c.mu.Unlock()
		pair := v.([2]interface{})
		if pair[1] == nil {
			return time.Time{}, false, nil
		}
		return pair[0].(time.Time), true, nil
	}
	c.mu.Unlock()

	type result struct {
		date  time.Time
		found bool
	}
	v, err, _ := c.group.Do("earliest:"+symbol, func() (interface{}, error) {
		d, found, err := c.inner.EarliestDate(symbol)
		return result{d, found}, err
	})
	if err != nil {
		return time.Time{}, false, err
	}
	r := v.(result)

	c.mu.Lock()
	if r.found {
		c.earliest.put(symbol, [2]interface{}{r.date, true})
	} else {
		c.earliest.put(symbol, [2]interface{}{time.Time{}, nil})
	}
	c.mu.Unlock()

	return r.date, r.found, nil
}

// TradingDays is cached for the lifetime of the Cached instance: the
// market calendar for already-ingested history does not change within a
// backtest, and recomputing it on every rebalance check would mean one
// upstream round trip per simulated month.
func (c *Cached) TradingDays() ([]time.Time, error) {
	c.mu.Lock()
	if c.haveCal {
		defer c.mu.Unlock()
		return c.calendar, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("calendar", func() (interface{}, error) {
		return c.inner.TradingDays()
	})
	if err != nil {
		return nil, err
	}
	days := v.([]time.Time)

	c.mu.Lock()
	c.calendar = days
	c.haveCal = true
	c.mu.Unlock()

	return days, nil
}

// lru is a small fixed-capacity least-recently-used cache. The pack
// carries no third-party LRU dependency, so this is built directly on
// container/list and a map rather than importing one.
type lru struct {
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value interface{}
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *lru) get(key string) (interface{}, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key string, value interface{}) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}
