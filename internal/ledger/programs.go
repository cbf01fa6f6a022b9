package ledger

import (
	"context"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/store"
)

// ProgramParams are the inputs of ScheduleProgram.
type ProgramParams struct {
	ManifestCID string
	WindowStart uint64
	WindowEnd   uint64 // 0 = unbounded
	RulesDigest ir.Digest
}

// ScheduleProgram creates a program owned by the caller, who must hold
// CURATOR. A bounded window must not end before it starts.
func (l *Ledger) ScheduleProgram(ctx context.Context, caller string, p ProgramParams) (uint64, error) {
	if err := checkQuantity("window start", p.WindowStart); err != nil {
		return 0, err
	}
	if err := checkQuantity("window end", p.WindowEnd); err != nil {
		return 0, err
	}

	var id uint64
	err := l.mutate(ctx, "schedule_program", caller, func(o *op) error {
		if err := o.requireRole(ir.RoleCurator); err != nil {
			return err
		}
		if p.WindowEnd != 0 && p.WindowEnd < p.WindowStart {
			return newError(CodeInvalidWindow, "window end %d precedes start %d", p.WindowEnd, p.WindowStart)
		}

		next, err := o.tx.NextID(ctx, "program")
		if err != nil {
			return err
		}
		prog := ir.Program{
			ID:          next,
			Curator:     caller,
			ManifestCID: p.ManifestCID,
			WindowStart: p.WindowStart,
			WindowEnd:   p.WindowEnd,
			RulesDigest: p.RulesDigest,
			CreatedAt:   o.at,
		}
		if err := o.tx.InsertProgram(ctx, prog); err != nil {
			return err
		}
		id = next
		return o.emit(ir.EventProgramScheduled, eventRef{programID: id, account: caller}, ir.Object{
			"program_id":   ir.Uint(id),
			"curator":      ir.String(caller),
			"manifest_cid": ir.String(p.ManifestCID),
			"window_start": ir.Uint(p.WindowStart),
			"window_end":   ir.Uint(p.WindowEnd),
			"rules_digest": ir.String(p.RulesDigest.Hex()),
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ViewProgram returns a program or NotFound.
func (l *Ledger) ViewProgram(ctx context.Context, id uint64) (ir.Program, error) {
	p, found, err := l.store.Program(ctx, id)
	if err != nil {
		return ir.Program{}, err
	}
	if !found {
		return ir.Program{}, notFound("program", id)
	}
	return p, nil
}

// ProgramCount returns the number of programs scheduled so far.
func (l *Ledger) ProgramCount(ctx context.Context) (uint64, error) {
	return l.store.ProgramCount(ctx)
}

// ListPrograms returns programs in id order.
func (l *Ledger) ListPrograms(ctx context.Context, f store.ProgramFilter) ([]ir.Program, error) {
	return l.store.ListPrograms(ctx, f)
}
