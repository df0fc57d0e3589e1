package collect

import (
	"context"

	"github.com/ibis-bot/ibis/internal/platform"
)

// RaceResult is the settlement of racing a text reply against a component
// activation. At most one branch is set; both nil means the race ended
// without a settlement (context cancelled or both branches ended).
type RaceResult struct {
	Reply     *platform.Message
	Component *platform.ComponentEvent
}

// Race waits for whichever settles first: the reply wait or the collector.
// The loser is always cancelled before Race returns, so a late settlement on
// the losing branch can never be consumed elsewhere.
func Race(ctx context.Context, wait *ReplyWait, col *Collector) RaceResult {
	defer wait.Cancel()
	defer col.Stop(EndStopped)

	for {
		select {
		case msg := <-wait.C():
			return RaceResult{Reply: &msg}
		case ev := <-col.Events():
			return RaceResult{Component: &ev}
		case <-col.Done():
			// an activation accepted right before the end still wins
			select {
			case ev := <-col.Events():
				return RaceResult{Component: &ev}
			default:
			}
			// collector ended without an activation: keep waiting on the
			// reply unless that side is gone too
			select {
			case msg := <-wait.C():
				return RaceResult{Reply: &msg}
			case <-wait.Done():
				select {
				case msg := <-wait.C():
					return RaceResult{Reply: &msg}
				default:
				}
				return RaceResult{}
			case <-ctx.Done():
				return RaceResult{}
			}
		case <-wait.Done():
			select {
			case msg := <-wait.C():
				return RaceResult{Reply: &msg}
			default:
			}
			// reply wait cancelled: wait on the component side alone
			ev, _, ok := col.Next(ctx)
			if !ok {
				return RaceResult{}
			}
			return RaceResult{Component: &ev}
		case <-ctx.Done():
			return RaceResult{}
		}
	}
}
