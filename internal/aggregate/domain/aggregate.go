package domain

import (
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// Root es el contrato que debe cumplir todo agregado event-sourced.
// El estado durable vive solo como eventos y snapshots; la instancia en
// memoria pertenece en exclusiva al llamante que la cargó.
type Root interface {
	AggregateID() string
	AggregateType() string

	// CurrentVersion es la última versión persistida conocida.
	CurrentVersion() int64
	SetVersion(v int64)

	// Apply muta el estado en memoria a partir de un evento, tanto en replay
	// como al registrar eventos nuevos. No debe tocar la versión.
	Apply(evt esDomain.Event) error

	UncommittedEvents() []esDomain.Event
	AppendUncommitted(evt esDomain.Event)
	ClearUncommittedEvents()
}

// Base aporta la mecánica común de versión y eventos sin confirmar.
// Se embebe en los agregados concretos, que solo implementan Apply y AggregateType.
type Base struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	uncommitted []esDomain.Event
}

func (b *Base) AggregateID() string   { return b.ID }
func (b *Base) CurrentVersion() int64 { return b.Version }
func (b *Base) SetVersion(v int64)    { b.Version = v }

func (b *Base) UncommittedEvents() []esDomain.Event { return b.uncommitted }

func (b *Base) AppendUncommitted(evt esDomain.Event) {
	b.uncommitted = append(b.uncommitted, evt)
}

func (b *Base) ClearUncommittedEvents() { b.uncommitted = nil }

// Record crea un evento con la siguiente versión contigua, lo aplica al
// agregado y lo deja pendiente de persistir en el próximo Save.
func Record(root Root, eventType string, payload interface{}) error {
	next := root.CurrentVersion() + int64(len(root.UncommittedEvents())) + 1

	evt, err := esDomain.NewEvent(root.AggregateID(), eventType, next, payload)
	if err != nil {
		return err
	}
	if err := root.Apply(evt); err != nil {
		return err
	}
	root.AppendUncommitted(evt)
	return nil
}
