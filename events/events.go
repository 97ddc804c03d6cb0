package events

import (
	"context"
	"math/big"
	"sync"
	"time"

	"lender/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypePositionChange   EventType = "position_change"
	EventTypeAccrualCompleted EventType = "accrual_completed"
	EventTypeLiquidation      EventType = "liquidation"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// PositionChangeEvent represents a position balance change that occurred
type PositionChangeEvent struct {
	UserID        string
	AssetID       string
	Kind          models.PositionKind
	EntryType     models.EntryType
	BalanceBefore *big.Int
	BalanceAfter  *big.Int
}

func (e PositionChangeEvent) Type() EventType {
	return EventTypePositionChange
}

// AccrualCompletedEvent represents a finished interest accrual pass
type AccrualCompletedEvent struct {
	RunAt            time.Time
	BorrowersCharged int
	SuppliersPaid    int
	InterestCharged  *big.Int
	YieldPaid        *big.Int
}

func (e AccrualCompletedEvent) Type() EventType {
	return EventTypeAccrualCompleted
}

// LiquidationEvent represents a force-closed account
type LiquidationEvent struct {
	UserID     string
	OperatorID string
}

func (e LiquidationEvent) Type() EventType {
	return EventTypeLiquidation
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Handlers run asynchronously so a slow consumer never blocks the ledger
	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus stashes events published during a unit of work and flushes
// them to the real bus only after the transaction commits. Rolled-back
// operations must not be observable, events included.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events; called after a successful commit. A
// background context is used so event delivery outlives the transaction
// context.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events")

	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard drops pending events; called after rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
