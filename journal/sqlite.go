package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/glockyhere/mt5bot/broker"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(record_id, session, ticket, symbol, side, volume, open_price, profit, hedged, comment, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RecordID, t.Session, t.Ticket, t.Symbol, string(t.Side),
		t.Volume, t.OpenPrice, t.Profit, t.Hedged, t.Comment, t.ClosedAt,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(session, time, balance, equity, margin_level, open_positions, day_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Time, e.Balance, e.Equity, e.MarginLevel, e.OpenPositions, e.DayProfit,
	)
	return err
}

// GetTrade looks up a single trade by its record id.
func (j *SQLiteJournal) GetTrade(recordID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT record_id, session, ticket, symbol, side, volume, open_price, profit, hedged, comment, closed_at
		FROM trades WHERE record_id = ?`, recordID)
	return scanTrade(row)
}

// TradesOn returns trades closed on the given day, "YYYY-MM-DD".
func (j *SQLiteJournal) TradesOn(day string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT record_id, session, ticket, symbol, side, volume, open_price, profit, hedged, comment, closed_at
		FROM trades WHERE date(closed_at) = ? ORDER BY closed_at`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (TradeRecord, error) {
	var t TradeRecord
	var side string
	err := r.Scan(&t.RecordID, &t.Session, &t.Ticket, &t.Symbol, &side,
		&t.Volume, &t.OpenPrice, &t.Profit, &t.Hedged, &t.Comment, &t.ClosedAt)
	if err != nil {
		return TradeRecord{}, err
	}
	t.Side = broker.Side(side)
	return t, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
