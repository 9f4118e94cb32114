package prices

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/quantedge-go/ruletree/pkg/logging"
	"github.com/rs/zerolog"
)

// maxOpenConns mirrors the original service's connection pool sizing
// (SimpleConnectionPool(minconn=1, maxconn=20)).
const maxOpenConns = 20

// Postgres is the Repository implementation backed by the prices/symbols
// tables (DDL in internal/store.Schema).
type Postgres struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgres opens a connection pool against connStr and verifies it
// with a ping.
func NewPostgres(connStr string) (*Postgres, error) {
	logger := logging.GetLogger("price-repository")

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("prices: open connection: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("prices: ping: %w", err)
	}

	logger.Info().Msg("connected to price store")
	return &Postgres{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) History(symbol string, asOf time.Time) ([]Bar, error) {
	rows, err := p.queryWithRetry(`
		SELECT symbol, date, open, high, low, close, adj_close, volume
		FROM prices
		WHERE symbol = $1 AND date <= $2
		ORDER BY date ASC`, symbol, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("prices: scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prices: iterate bars: %w", err)
	}

	if len(bars) == 0 {
		known, err := p.symbolKnown(symbol)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrSymbolUnknown, symbol)
		}
	}

	return bars, nil
}

func (p *Postgres) symbolKnown(symbol string) (bool, error) {
	var exists bool
	row := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM symbols WHERE symbol = $1)`, symbol)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("prices: check symbol: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Panel(symbols []string, start, end time.Time) (*Panel, error) {
	panel := &Panel{
		Symbols: symbols,
		Values:  make(map[time.Time]map[string]float64),
	}
	dateSet := make(map[time.Time]struct{})

	for _, symbol := range symbols {
		rows, err := p.queryWithRetry(`
			SELECT date, adj_close
			FROM prices
			WHERE symbol = $1 AND date >= $2 AND date <= $3
			ORDER BY date ASC`, symbol, start, end)
		if err != nil {
			return nil, err
		}

		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var d time.Time
				var adjClose float64
				if err := rows.Scan(&d, &adjClose); err != nil {
					return fmt.Errorf("prices: scan panel cell: %w", err)
				}
				if _, ok := panel.Values[d]; !ok {
					panel.Values[d] = make(map[string]float64)
				}
				panel.Values[d][symbol] = adjClose
				dateSet[d] = struct{}{}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sortDates(dates)
	panel.Dates = dates

	return panel, nil
}

func (p *Postgres) EarliestDate(symbol string) (time.Time, bool, error) {
	var d sql.NullTime
	row := p.db.QueryRow(`SELECT MIN(date) FROM prices WHERE symbol = $1`, symbol)
	if err := row.Scan(&d); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("prices: earliest date: %w", err)
	}
	if !d.Valid || d.Time.IsZero() {
		return time.Time{}, false, nil
	}
	return d.Time, true, nil
}

func (p *Postgres) TradingDays() ([]time.Time, error) {
	rows, err := p.queryWithRetry(`SELECT date FROM prices WHERE symbol = $1 ORDER BY date ASC`, SPY)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("prices: scan trading day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// queryWithRetry retries a query once on transient failure before
// surfacing ErrRepositoryUnavailable (spec §7: RepositoryUnavailable is
// retried once per query, otherwise fatal).
func (p *Postgres) queryWithRetry(query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := p.db.Query(query, args...)
	if err == nil {
		return rows, nil
	}
	p.logger.Warn().Err(err).Msg("price query failed, retrying once")

	rows, err = p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return rows, nil
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}

var _ Repository = (*Postgres)(nil)
var _ Repository = (*Cached)(nil)
