package ledger

import (
	"context"

	"github.com/roach88/pulseledger/internal/ir"
)

// MintEmblemForPulse issues the achievement token for a validated pulse.
// Requires CURATOR. Each pulse gets at most one emblem; a second mint fails
// with AlreadyMinted regardless of the current verdict.
func (l *Ledger) MintEmblemForPulse(ctx context.Context, caller string, pulseID uint64, to, emblemCID string) (uint64, error) {
	if to == "" {
		return 0, invalidArgument("recipient account is required")
	}

	var tokenID uint64
	err := l.mutate(ctx, "mint_emblem", caller, func(o *op) error {
		if err := o.requireRole(ir.RoleCurator); err != nil {
			return err
		}
		pulse, err := o.pulse(pulseID)
		if err != nil {
			return err
		}
		if pulse.EmblemTokenID != 0 {
			return newError(CodeAlreadyMinted, "pulse %d already has emblem %d", pulseID, pulse.EmblemTokenID)
		}
		if !pulse.Validated {
			return newError(CodeNotValidated, "pulse %d has not been approved", pulseID)
		}

		next, err := o.tx.NextID(ctx, "emblem")
		if err != nil {
			return err
		}
		if err := o.tx.InsertEmblem(ctx, ir.Emblem{
			TokenID:   next,
			PulseID:   pulseID,
			Owner:     to,
			EmblemCID: emblemCID,
			MintedAt:  o.at,
		}); err != nil {
			return err
		}
		if err := o.tx.SetPulseEmblem(ctx, pulseID, next); err != nil {
			return err
		}

		tokenID = next
		return o.emit(ir.EventEmblemMinted, eventRef{pulseID: pulseID, programID: pulse.ProgramID, account: to}, ir.Object{
			"pulse_id":   ir.Uint(pulseID),
			"token_id":   ir.Uint(tokenID),
			"to":         ir.String(to),
			"emblem_cid": ir.String(emblemCID),
		})
	})
	if err != nil {
		return 0, err
	}
	return tokenID, nil
}

// ViewEmblem returns an emblem by token id or NotFound.
func (l *Ledger) ViewEmblem(ctx context.Context, tokenID uint64) (ir.Emblem, error) {
	e, found, err := l.store.Emblem(ctx, tokenID)
	if err != nil {
		return ir.Emblem{}, err
	}
	if !found {
		return ir.Emblem{}, notFound("emblem", tokenID)
	}
	return e, nil
}

// EmblemCollection returns the collection metadata fixed at genesis.
func (l *Ledger) EmblemCollection(ctx context.Context) (ir.Collection, error) {
	name, found, err := l.store.Meta(ctx, metaEmblemName)
	if err != nil {
		return ir.Collection{}, err
	}
	if !found {
		return ir.Collection{}, newError(CodeNotInitialized, "ledger has not been initialized")
	}
	symbol, _, err := l.store.Meta(ctx, metaEmblemSymbol)
	if err != nil {
		return ir.Collection{}, err
	}
	return ir.Collection{Name: name, Symbol: symbol}, nil
}
