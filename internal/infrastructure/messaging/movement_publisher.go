package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
)

var _ inventory.MovementPublisher = (*KafkaMovementPublisher)(nil)

// EventTypeMovementRecorded tipo del evento publicado por cada movimiento confirmado.
const EventTypeMovementRecorded = "inventory.movement.recorded"

// MessageWriter lo implementa *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BalanceState saldo resultante incluido en el evento.
type BalanceState struct {
	LocationID string          `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Version    int64           `json:"version"`
}

// MovementRecordedEvent evento para consumidores de auditoría y reportes.
// From/To son los saldos que el movimiento modificó; FromLocationID/ToLocationID son las ubicaciones
// informadas, aunque un ADJUSTMENT con ambas solo modifique el destino.
type MovementRecordedEvent struct {
	EventType            string           `json:"event_type"`
	MovementID           string           `json:"movement_id"`
	TenantID             string           `json:"tenant_id"`
	Number               int64            `json:"number"`
	NumberYear           int              `json:"number_year"`
	DisplayNumber        string           `json:"display_number"`
	Type                 string           `json:"type"`
	SupplyID             string           `json:"supply_id"`
	LotID                string           `json:"lot_id,omitempty"`
	FromLocationID       string           `json:"from_location_id,omitempty"`
	ToLocationID         string           `json:"to_location_id,omitempty"`
	Quantity             decimal.Decimal  `json:"quantity"`
	PresentationID       string           `json:"presentation_id,omitempty"`
	PresentationQuantity *decimal.Decimal `json:"presentation_quantity,omitempty"`
	ReferenceType        string           `json:"reference_type,omitempty"`
	ReferenceID          string           `json:"reference_id,omitempty"`
	Note                 string           `json:"note,omitempty"`
	CreatedBy            string           `json:"created_by,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	From                 *BalanceState    `json:"from,omitempty"`
	To                   *BalanceState    `json:"to,omitempty"`
}

// MessageKey clave de partición: tenant:insumo. Todos los saldos de un insumo caen en la misma
// partición, así los consumidores reciben sus versiones en orden.
func (ev MovementRecordedEvent) MessageKey() []byte {
	return []byte(ev.TenantID + ":" + ev.SupplyID)
}

// WriterConfig límites del writer. Un broker caído no debe retener eventos indefinidamente.
type WriterConfig struct {
	MaxAttempts  int
	WriteTimeout time.Duration
}

// KafkaMovementPublisher publica movimientos en un tópico con clave tenant:insumo.
type KafkaMovementPublisher struct {
	writer MessageWriter
	prefix string
}

// NewKafkaWriter construye el writer de kafka-go para el tópico de movimientos.
func NewKafkaWriter(brokers []string, topic string, cfg WriterConfig) *kafka.Writer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaMovementPublisher construye el publicador. prefix arma el número legible.
func NewKafkaMovementPublisher(writer MessageWriter, prefix string) *KafkaMovementPublisher {
	return &KafkaMovementPublisher{writer: writer, prefix: prefix}
}

// PublishMovement serializa el resultado y lo escribe con el contexto de traza en los headers.
func (p *KafkaMovementPublisher) PublishMovement(ctx context.Context, result *inventory.MovementResult) error {
	ev := NewMovementRecordedEvent(result, p.prefix)
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal movement event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{{Key: "event_type", Value: []byte(EventTypeMovementRecorded)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     ev.MessageKey(),
		Value:   value,
		Headers: headers,
		Time:    ev.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write movement %s: %w", ev.MovementID, err)
	}
	return nil
}

// Close cierra el writer.
func (p *KafkaMovementPublisher) Close() error {
	return p.writer.Close()
}

// NewMovementRecordedEvent arma el evento a partir del resultado del motor.
func NewMovementRecordedEvent(result *inventory.MovementResult, prefix string) MovementRecordedEvent {
	m := result.Movement
	ev := MovementRecordedEvent{
		EventType:            EventTypeMovementRecorded,
		MovementID:           m.ID,
		TenantID:             m.TenantID,
		Number:               m.Number,
		NumberYear:           m.NumberYear,
		DisplayNumber:        m.DisplayNumber(prefix),
		Type:                 m.Type,
		SupplyID:             m.SupplyID,
		LotID:                m.LotID,
		FromLocationID:       m.FromLocationID,
		ToLocationID:         m.ToLocationID,
		Quantity:             m.Quantity,
		PresentationID:       m.PresentationID,
		PresentationQuantity: m.PresentationQuantity,
		ReferenceType:        m.ReferenceType,
		ReferenceID:          m.ReferenceID,
		Note:                 m.Note,
		CreatedBy:            m.CreatedBy,
		CreatedAt:            m.CreatedAt,
	}
	if b := result.FromBalance; b != nil {
		ev.From = &BalanceState{LocationID: b.LocationID, Quantity: b.Quantity, Version: b.Version}
	}
	if b := result.ToBalance; b != nil {
		ev.To = &BalanceState{LocationID: b.LocationID, Quantity: b.Quantity, Version: b.Version}
	}
	return ev
}
