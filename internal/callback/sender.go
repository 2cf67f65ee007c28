package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/testworker/internal/domain"
)

const tracerName = "github.com/roach88/testworker/internal/callback"

// maxErrorBody caps how much of a failed response is kept on DeliveryError.
const maxErrorBody = 4096

// Header is the envelope header of a delivered WorkerEvent.
type Header struct {
	SequenceNumber    int64                      `json:"sequence_number"`
	Type              domain.WorkerEventType     `json:"type"`
	Label             string                     `json:"label"`
	Reference         string                     `json:"reference"`
	RelatedReferences []domain.ResourceReference `json:"related_references,omitempty"`
}

// Envelope is the JSON body POSTed to the collector.
type Envelope struct {
	Header Header         `json:"header"`
	Body   map[string]any `json:"body"`
}

// NewEnvelope builds the wire envelope for a WorkerEvent.
func NewEnvelope(e domain.WorkerEvent) Envelope {
	body := e.Payload
	if body == nil {
		body = map[string]any{}
	}
	return Envelope{
		Header: Header{
			SequenceNumber:    e.SequenceNumber,
			Type:              e.Type(),
			Label:             e.Label,
			Reference:         e.Reference,
			RelatedReferences: e.RelatedReferences,
		},
		Body: body,
	}
}

// Encode renders the wire body of a WorkerEvent.
func Encode(e domain.WorkerEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NewEnvelope(e)); err != nil {
		return nil, fmt.Errorf("encode worker event %d: %w", e.SequenceNumber, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// JobFinder looks up the job, if any.
type JobFinder interface {
	FindJob(ctx context.Context) (domain.Job, bool, error)
}

// DeliveryObserver records delivery outcomes, e.g. for metrics.
type DeliveryObserver interface {
	WorkerEventDelivered(e domain.WorkerEvent, duration time.Duration, err error)
}

// Sender delivers WorkerEvents over HTTP.
type Sender struct {
	jobs       JobFinder
	client     *http.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	observer   DeliveryObserver
	logger     *slog.Logger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = c
	}
}

// WithDeliveryObserver sets an observer for delivery outcomes.
func WithDeliveryObserver(o DeliveryObserver) SenderOption {
	return func(s *Sender) {
		s.observer = o
	}
}

// WithSenderLogger sets the sender logger.
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = l
	}
}

// NewSender creates a Sender. Tracing uses the global otel providers.
func NewSender(jobs JobFinder, opts ...SenderOption) *Sender {
	s := &Sender{
		jobs:       jobs,
		client:     &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Send POSTs the WorkerEvent to the job's delivery URL.
// Returns a *DeliveryError for status >= 300 and a *TransportError when the
// request fails. Does nothing if no job exists.
func (s *Sender) Send(ctx context.Context, e domain.WorkerEvent) (err error) {
	job, exists, err := s.jobs.FindJob(ctx)
	if err != nil {
		return fmt.Errorf("send worker event %d: %w", e.SequenceNumber, err)
	}
	if !exists {
		s.logger.Debug("no job, delivery skipped", "sequence_number", e.SequenceNumber)
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "worker_event.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("worker_event.sequence_number", e.SequenceNumber),
			attribute.String("worker_event.type", string(e.Type())),
			attribute.String("worker_event.reference", e.Reference),
			attribute.String("job.label", job.Label),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if s.observer != nil {
			s.observer.WorkerEventDelivered(e, time.Since(start), err)
		}
	}()

	body, err := Encode(e)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.EventDeliveryURL, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Event: e, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	s.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Event: e, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{Event: e, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Info("worker event delivered",
		"sequence_number", e.SequenceNumber,
		"type", e.Type(),
		"status", resp.StatusCode,
	)
	return nil
}
