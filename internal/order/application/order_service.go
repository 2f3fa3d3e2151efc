package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
	"github.com/davicafu/eventlab/internal/order/domain"
	outboxDomain "github.com/davicafu/eventlab/internal/outbox/domain"
)

// OrderService define los casos de uso relacionados con Order. Cada mutación
// persiste sus eventos vía repositorio y deja en el outbox los mensajes de
// integración espejo, que el relayer entregará más tarde.
type OrderService struct {
	repo   aggDomain.Repository
	outbox outboxDomain.Store
	log    *zap.Logger
}

// NewOrderService constructor
func NewOrderService(repo aggDomain.Repository, outbox outboxDomain.Store, log *zap.Logger) *OrderService {
	return &OrderService{repo: repo, outbox: outbox, log: log}
}

// enqueueOutbox refleja los eventos sin confirmar como mensajes de integración.
// Debe llamarse ANTES de Save, porque Save limpia los eventos sin confirmar.
func (s *OrderService) enqueueOutbox(ctx context.Context, evts []esDomain.Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs := make([]outboxDomain.Message, 0, len(evts))
	for _, evt := range evts {
		msg, err := outboxDomain.NewMessage(evt.AggregateID, evt.EventType, evt.Payload, map[string]string{
			"aggregate_type": domain.OrderAggregateType,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return s.outbox.Add(ctx, msgs)
}

func (s *OrderService) CreateOrder(ctx context.Context, customerID string) (*domain.Order, error) {
	order, err := domain.CreateOrder(uuid.NewString(), customerID)
	if err != nil {
		return nil, err
	}

	pending := order.UncommittedEvents()
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	if err := s.enqueueOutbox(ctx, pending); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) AddItem(ctx context.Context, id string, item domain.OrderItem) (*domain.Order, error) {
	root, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	order := root.(*domain.Order)

	if err := order.AddItem(item); err != nil {
		return nil, err
	}

	pending := order.UncommittedEvents()
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	if err := s.enqueueOutbox(ctx, pending); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	root, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	order := root.(*domain.Order)
	if order.Deleted {
		return nil, domain.ErrOrderDeleted
	}
	return order, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	msg, err := outboxDomain.NewMessage(id, domain.OrderDeleted, struct{}{}, map[string]string{
		"aggregate_type": domain.OrderAggregateType,
	})
	if err != nil {
		return err
	}
	return s.outbox.Add(ctx, []outboxDomain.Message{msg})
}
