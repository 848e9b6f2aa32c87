package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"contacthub/internal/contact/models"
)

// Schema creates the contacts table and the change-notification trigger.
// Applied by cmd/migrate.
//
//go:embed schema.sql
var Schema string

// notifyChannel is the Postgres NOTIFY channel the schema trigger fires on.
const notifyChannel = "contact_events"

// Postgres persists contacts as schemaless JSONB documents. Queries run
// through pgx; the change feed rides LISTEN/NOTIFY via a lib/pq listener,
// which handles the long-lived notification connection.
type Postgres struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPostgres wraps an existing pool. The DSN is needed separately because
// the notification listener opens its own connection.
func NewPostgres(pool *pgxpool.Pool, dsn string, logger *slog.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		dsn:    dsn,
		logger: logger,
		tracer: otel.Tracer("contacthub/contact/store"),
	}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) Insert(ctx context.Context, rec models.ContactRecord) (models.ContactRecord, error) {
	ctx, span := p.tracer.Start(ctx, "store.Insert")
	defer span.End()

	if rec.Status == "" {
		rec.Status = models.StatusNew
	}
	doc, err := json.Marshal(rec.Document())
	if err != nil {
		return models.ContactRecord{}, fmt.Errorf("marshal contact document: %w", err)
	}

	err = p.pool.QueryRow(ctx,
		`INSERT INTO contacts (doc) VALUES ($1) RETURNING id, created_at`,
		doc,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return models.ContactRecord{}, fmt.Errorf("insert contact: %w", err)
	}
	return rec, nil
}

func (p *Postgres) GetAll(ctx context.Context) ([]models.ContactRecord, error) {
	ctx, span := p.tracer.Start(ctx, "store.GetAll")
	defer span.End()

	rows, err := p.pool.Query(ctx,
		`SELECT id, doc, created_at FROM contacts ORDER BY created_at DESC`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var records []models.ContactRecord
	for rows.Next() {
		var (
			id        string
			raw       []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		rec, err := p.parseRow(id, raw, createdAt)
		if err != nil {
			// A malformed document is rejected, not trusted; the rest of the
			// result set still loads.
			p.logger.Warn("rejecting malformed contact document", "id", id, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return records, nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (models.ContactRecord, error) {
	ctx, span := p.tracer.Start(ctx, "store.GetByID")
	defer span.End()

	var (
		raw       []byte
		createdAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT doc, created_at FROM contacts WHERE id = $1`, id,
	).Scan(&raw, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContactRecord{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return models.ContactRecord{}, fmt.Errorf("get contact: %w", err)
	}
	return p.parseRow(id, raw, createdAt)
}

func (p *Postgres) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	ctx, span := p.tracer.Start(ctx, "store.UpdateFields")
	defer span.End()

	patch, err := json.Marshal(normalizeFields(fields))
	if err != nil {
		return fmt.Errorf("marshal contact patch: %w", err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE contacts SET doc = doc || $2 WHERE id = $1`, id, patch)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	ctx, span := p.tracer.Start(ctx, "store.Delete")
	defer span.End()

	tag, err := p.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// notification is the trigger payload shape.
type notification struct {
	Op models.ChangeType `json:"op"`
	ID string            `json:"id"`
}

func (p *Postgres) Subscribe(ctx context.Context) (<-chan []models.ChangeEvent, error) {
	listener := pq.NewListener(p.dsn, time.Second, 30*time.Second, func(event pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Error("contact feed listener event", "event", int(event), "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", notifyChannel, err)
	}

	out := make(chan []models.ChangeEvent)
	go p.pump(ctx, listener, out)
	return out, nil
}

// pump converts raw notifications into typed change events. A nil
// notification signals a dropped and re-established connection; events were
// lost in between, so the feed is terminated rather than silently resumed.
func (p *Postgres) pump(ctx context.Context, listener *pq.Listener, out chan<- []models.ChangeEvent) {
	defer close(out)
	defer func() {
		if err := listener.Close(); err != nil {
			p.logger.Error("closing contact feed listener", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				p.logger.Error("contact feed connection was lost; terminating feed")
				return
			}

			var note notification
			if err := json.Unmarshal([]byte(n.Extra), &note); err != nil {
				p.logger.Warn("undecodable contact notification", "payload", n.Extra, "error", err)
				continue
			}

			event, ok := p.resolve(ctx, note)
			if !ok {
				continue
			}
			select {
			case out <- []models.ChangeEvent{event}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// resolve turns a notification into a full change event. Added and modified
// notifications carry only the id, so the current document is fetched; a row
// deleted before the fetch lands is reported as removed.
func (p *Postgres) resolve(ctx context.Context, note notification) (models.ChangeEvent, bool) {
	switch note.Op {
	case models.ChangeRemoved:
		return models.ChangeEvent{Type: models.ChangeRemoved, ID: note.ID}, true
	case models.ChangeAdded, models.ChangeModified:
		rec, err := p.GetByID(ctx, note.ID)
		if errors.Is(err, ErrNotFound) {
			return models.ChangeEvent{Type: models.ChangeRemoved, ID: note.ID}, true
		}
		if err != nil {
			p.logger.Error("fetching changed contact", "id", note.ID, "error", err)
			return models.ChangeEvent{}, false
		}
		return models.ChangeEvent{Type: note.Op, ID: note.ID, Record: rec}, true
	default:
		p.logger.Warn("unknown contact notification op", "op", string(note.Op))
		return models.ChangeEvent{}, false
	}
}

// parseRow applies the parse-or-reject boundary and backfills the creation
// timestamp from the canonical column when the document omits it.
func (p *Postgres) parseRow(id string, raw []byte, createdAt time.Time) (models.ContactRecord, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.ContactRecord{}, fmt.Errorf("decode contact document: %w", err)
	}
	rec, err := models.ParseDocument(id, doc)
	if err != nil {
		return models.ContactRecord{}, err
	}
	if _, ok := doc["timestamp"]; !ok {
		rec.CreatedAt = createdAt
	}
	return rec, nil
}

// normalizeFields renders field values in the document's wire shape so a
// JSONB merge stays consistent with what ParseDocument expects back.
func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			out[k] = t.Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return out
}
