package ledger

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/pulseledger/internal/ir"
	"github.com/roach88/pulseledger/internal/store"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	parameters.MaxSize = 12
	return parameters
}

// TestProperty_ProgramIDsAreDense checks that successful schedules get
// ids 1..n in call order and rejected ones consume nothing.
func TestProperty_ProgramIDsAreDense(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("program ids are strictly increasing without gaps", prop.ForAll(
		func(starts, ends []int) bool {
			f := newFixture(t)
			var want uint64
			for i := range min(len(starts), len(ends)) {
				start, end := uint64(starts[i]), uint64(ends[i])
				id, err := f.ledger.ScheduleProgram(f.ctx, curator, ProgramParams{WindowStart: start, WindowEnd: end})
				invalid := end != 0 && end < start
				if invalid {
					if CodeOf(err) != CodeInvalidWindow {
						return false
					}
					continue
				}
				want++
				if err != nil || id != want {
					return false
				}
			}
			n, err := f.ledger.ProgramCount(f.ctx)
			return err == nil && n == want
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

// TestProperty_LatencyOnlyWhenRevealed checks that a freshly recorded
// pulse carries a plaintext latency exactly when it is revealed.
func TestProperty_LatencyOnlyWhenRevealed(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("latency is set iff exposure is revealed", prop.ForAll(
		func(levels []int) bool {
			f := newFixture(t)
			for i, level := range levels {
				var params RecordParams
				switch ir.Exposure(level) {
				case ir.Revealed:
					params = revealed(uint64(100 + i))
				case ir.Encrypted:
					params = f.encrypted(t, uint64(i), pilot)
				default:
					params = shielded()
				}
				id, err := f.ledger.RecordPulse(f.ctx, pilot, params)
				if err != nil {
					return false
				}
				p, err := f.ledger.ViewPulse(f.ctx, id)
				if err != nil {
					return false
				}
				if p.HasLatency() != (p.Exposure == ir.Revealed) {
					return false
				}
				if p.HasSealedValue() != (p.Exposure == ir.Encrypted) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

// TestProperty_LogReproducesState drives random operation sequences,
// including rejected ones, and checks the chain and replay afterwards.
func TestProperty_LogReproducesState(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("audit log verifies and replays to stored state", prop.ForAll(
		func(ops []int) bool {
			f := newFixture(t)
			ctx := f.ctx
			var pulses uint64
			for i, o := range ops {
				target := uint64(i%3) + 1
				switch o {
				case 0:
					if id, err := f.ledger.RecordPulse(ctx, pilot, revealed(uint64(50+i))); err == nil {
						pulses = id
					}
				case 1:
					if id, err := f.ledger.RecordPulse(ctx, pilot, f.encrypted(t, uint64(i), pilot)); err == nil {
						pulses = id
					}
				case 2:
					_ = f.ledger.AuditPulse(ctx, analyst, target, i%2 == 0, "")
				case 3:
					_, _ = f.ledger.MintEmblemForPulse(ctx, curator, target, pilot, "")
				case 4:
					_ = f.ledger.ExposePulse(ctx, curator, target, 77, "")
				case 5:
					_ = f.ledger.DelegateDecrypt(ctx, curator, target, stranger)
				case 6:
					_, _ = f.ledger.ScheduleProgram(ctx, curator, ProgramParams{WindowStart: uint64(i), WindowEnd: uint64(i % 4)})
				}
			}

			if n, err := f.ledger.PulseCount(ctx); err != nil || n != pulses {
				return false
			}
			evs, err := f.ledger.Events(ctx, store.EventFilter{})
			if err != nil {
				return false
			}
			chain, err := f.ledger.VerifyChain(ctx)
			if err != nil || chain.Events != int64(len(evs)) {
				return false
			}
			report, err := f.ledger.Replay(ctx)
			return err == nil && report.Consistent()
		},
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.TestingRun(t)
}
