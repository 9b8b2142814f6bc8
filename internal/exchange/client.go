package exchange

import (
	"context"
	"errors"
	"fmt"

	"trade_core/internal/models"
)

// Client — capability для работы с биржей. Инстанс держит ТОЛЬКО экзекьютор:
// это структурная гарантия, что риск-менеджер нельзя обойти. Остальные
// компоненты получают рыночные данные через ingest и никогда не зовут
// SubmitOrder напрямую.
type Client interface {
	// SubmitOrder отправляет ордер. Никогда не ретраится здесь —
	// политика ретраев принадлежит верхним уровням.
	SubmitOrder(ctx context.Context, order models.Order) (models.Fill, error)

	// OpenPositions — открытые позиции по данным биржи. Зовётся на старте
	// и после реконнекта стрима для аудита.
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// RejectedError — биржа отклонила ордер.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

// TransportError — сетевая ошибка или таймаут. Retryable — подсказка
// для верхнего уровня, сам клиент не ретраит.
type TransportError struct {
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (retryable=%v): %v", e.Retryable, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

var ErrInsufficientFunds = errors.New("insufficient funds")
