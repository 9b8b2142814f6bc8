package strategy

import "trade_core/internal/models"

// Strategy — то, что реестр дергает на каждом событии её пары.
// Evaluate чистая относительно внешнего мира: никакого I/O, допускается
// только собственное ограниченное состояние (например, прошлое значение
// индикатора для детекта пересечений).
type Strategy interface {
	Name() string
	// Evaluate получает срез событий своей пары (старые первыми, последнее —
	// текущее). nil — сигнала нет.
	Evaluate(events []models.MarketEvent) *models.Signal
}
