package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/queryir"
)

const eventColumns = `seq, op_token, kind, pulse_id, program_id, account, actor, fields, at, prev_hash, hash`

// EventFilter narrows QueryEvents. Zero fields match everything.
type EventFilter struct {
	Kinds     []ir.EventKind
	PulseID   uint64
	ProgramID uint64
	Account   string
	AfterSeq  int64
	Limit     int
}

// predicate translates the filter into queryir.
func (f EventFilter) predicate() queryir.Predicate {
	var preds []queryir.Predicate
	if len(f.Kinds) > 0 {
		vals := make([]ir.Value, len(f.Kinds))
		for i, k := range f.Kinds {
			vals[i] = ir.String(k)
		}
		preds = append(preds, queryir.In{Field: "kind", Values: vals})
	}
	if f.PulseID > 0 {
		preds = append(preds, queryir.Equals{Field: "pulse_id", Value: ir.Uint(f.PulseID)})
	}
	if f.ProgramID > 0 {
		preds = append(preds, queryir.Equals{Field: "program_id", Value: ir.Uint(f.ProgramID)})
	}
	if f.Account != "" {
		preds = append(preds, queryir.Equals{Field: "account", Value: ir.String(f.Account)})
	}
	if f.AfterSeq > 0 {
		preds = append(preds, queryir.AtLeast{Field: "seq", Value: ir.Int(f.AfterSeq + 1)})
	}
	return queryir.All(preds...)
}

// AppendEvent assigns the next seq, links ev to the current chain head and
// inserts it. The stored event is returned with Seq, PrevHash and Hash set.
func (t *Tx) AppendEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	seq, err := t.NextID(ctx, "event")
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}
	ev.Seq = int64(seq)

	head, found, err := t.LastEvent(ctx)
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}
	ev.PrevHash = ir.GenesisHash
	if found {
		ev.PrevHash = head.Hash
	}
	if ev.Fields == nil {
		ev.Fields = ir.Object{}
	}

	ev.Hash, err = ir.EventHash(ev)
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}

	fields, err := ir.MarshalCanonical(ev.Fields)
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Seq, ev.OpToken, string(ev.Kind), ev.PulseID, ev.ProgramID, ev.Account, ev.Actor,
		string(fields), ev.At, ev.PrevHash, ev.Hash,
	)
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}
	return ev, nil
}

// LastEvent returns the chain head.
func (r reader) LastEvent(ctx context.Context) (ir.Event, bool, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq DESC LIMIT 1`)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Event{}, false, nil
	}
	if err != nil {
		return ir.Event{}, false, fmt.Errorf("read last event: %w", err)
	}
	return ev, true, nil
}

// QueryEvents returns events matching f in seq order.
func (r reader) QueryEvents(ctx context.Context, f EventFilter) ([]ir.Event, error) {
	rows, err := r.selectRows(ctx, queryir.Select{
		From:    "events",
		Columns: splitColumns(eventColumns),
		Filter:  f.predicate(),
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EachEvent calls fn for every event in seq order, stopping at the first
// error.
func (r reader) EachEvent(ctx context.Context, fn func(ir.Event) error) error {
	rows, err := r.q.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEvent(s scanner) (ir.Event, error) {
	var ev ir.Event
	var kind, fields string
	err := s.Scan(&ev.Seq, &ev.OpToken, &kind, &ev.PulseID, &ev.ProgramID, &ev.Account,
		&ev.Actor, &fields, &ev.At, &ev.PrevHash, &ev.Hash)
	if err != nil {
		return ir.Event{}, err
	}
	ev.Kind = ir.EventKind(kind)

	v, err := ir.UnmarshalValue([]byte(fields))
	if err != nil {
		return ir.Event{}, fmt.Errorf("event %d fields: %w", ev.Seq, err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return ir.Event{}, fmt.Errorf("event %d fields: not an object", ev.Seq)
	}
	ev.Fields = obj
	return ev, nil
}
