package ledger

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store — персистентность леджера. Закрытие позиции атомарно: удаление
// позиции и вставка трейда идут в одной транзакции.
type Store interface {
	UpsertPosition(ctx context.Context, p models.Position) error
	DeletePosition(ctx context.Context, id string) error
	CloseAndRecord(ctx context.Context, positionID string, remaining *models.Position, trade models.Trade) error
	LoadPositions(ctx context.Context, mode models.TradingMode) ([]models.Position, error)
	RecentTrades(ctx context.Context, mode models.TradingMode, since time.Time) ([]models.Trade, error)
	LoadPeakValue(ctx context.Context, mode models.TradingMode) (float64, bool, error)
	SavePeakValue(ctx context.Context, mode models.TradingMode, v float64) error
}

type PgStore struct {
	tm db.TxManager
}

func NewPgStore(tm db.TxManager) *PgStore {
	return &PgStore{tm: tm}
}

func (s *PgStore) UpsertPosition(ctx context.Context, p models.Position) error {
	_, err := s.tm.Conn().Exec(ctx, `
		INSERT INTO positions (id, pair, side, entry_price, quantity, mode, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET entry_price = EXCLUDED.entry_price, quantity = EXCLUDED.quantity`,
		p.ID, p.Pair, string(p.Side), p.EntryPrice, p.Quantity, string(p.Mode), p.OpenedAt,
	)
	return errors.Wrap(err, "upsert position")
}

func (s *PgStore) DeletePosition(ctx context.Context, id string) error {
	_, err := s.tm.Conn().Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	return errors.Wrap(err, "delete position")
}

// CloseAndRecord удаляет (или ужимает при частичном закрытии) позицию и
// пишет трейд одной транзакцией: либо всё, либо ничего.
func (s *PgStore) CloseAndRecord(ctx context.Context, positionID string, remaining *models.Position, trade models.Trade) error {
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if remaining == nil {
			if _, err := tx.Exec(ctxTx, `DELETE FROM positions WHERE id = $1`, positionID); err != nil {
				return errors.Wrap(err, "delete closed position")
			}
		} else {
			if _, err := tx.Exec(ctxTx,
				`UPDATE positions SET quantity = $2 WHERE id = $1`,
				positionID, remaining.Quantity,
			); err != nil {
				return errors.Wrap(err, "shrink position")
			}
		}

		_, err := tx.Exec(ctxTx, `
			INSERT INTO trades (id, pair, side, entry_price, exit_price, quantity, pnl_usd, mode, opened_at, closed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			trade.ID, trade.Pair, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
			trade.Quantity, trade.PnLUSD, string(trade.Mode), trade.OpenedAt, trade.ClosedAt,
		)
		return errors.Wrap(err, "insert trade")
	})
}

func (s *PgStore) LoadPositions(ctx context.Context, mode models.TradingMode) ([]models.Position, error) {
	rows, err := s.tm.Conn().Query(ctx, `
		SELECT id, pair, side, entry_price, quantity, opened_at
		FROM positions WHERE mode = $1`,
		string(mode),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load positions")
	}
	defer rows.Close()

	var res []models.Position
	for rows.Next() {
		var p models.Position
		var side string
		if err := rows.Scan(&p.ID, &p.Pair, &side, &p.EntryPrice, &p.Quantity, &p.OpenedAt); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Side = models.Side(side)
		p.Mode = mode
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *PgStore) RecentTrades(ctx context.Context, mode models.TradingMode, since time.Time) ([]models.Trade, error) {
	rows, err := s.tm.Conn().Query(ctx, `
		SELECT id, pair, side, entry_price, exit_price, quantity, pnl_usd, opened_at, closed_at
		FROM trades WHERE mode = $1 AND closed_at >= $2
		ORDER BY closed_at DESC`,
		string(mode), since,
	)
	if err != nil {
		return nil, errors.Wrap(err, "load trades")
	}
	defer rows.Close()

	var res []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Pair, &side, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnLUSD, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		t.Side = models.Side(side)
		t.Mode = mode
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *PgStore) LoadPeakValue(ctx context.Context, mode models.TradingMode) (float64, bool, error) {
	var v float64
	err := s.tm.Conn().QueryRow(ctx,
		`SELECT value FROM engine_meta WHERE key = $1`,
		peakKey(mode),
	).Scan(&v)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "load peak value")
	}
	return v, true, nil
}

func (s *PgStore) SavePeakValue(ctx context.Context, mode models.TradingMode, v float64) error {
	_, err := s.tm.Conn().Exec(ctx, `
		INSERT INTO engine_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		peakKey(mode), v,
	)
	return errors.Wrap(err, "save peak value")
}

func peakKey(mode models.TradingMode) string {
	return "peak_value_" + string(mode)
}
