// Package draw runs the member-day lottery loops.
package draw

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/clock"
	"github.com/example/aove-scheduler/internal/weaiove"
)

// Pool is one of the two independent draw mechanisms.
type Pool int

const (
	PoolFree   Pool = iota // free and share-unlocked chances
	PoolPoints             // chances bought with points
)

func (p Pool) String() string {
	if p == PoolPoints {
		return "points"
	}
	return "free"
}

// Iteration caps. The remaining-chances endpoint is not reliable enough to
// loop on alone, so every loop is bounded regardless of what it reports.
const (
	MaxFreeDraws   = 3
	MaxPointsDraws = 5
)

const (
	drawInterval = 500 * time.Millisecond
	shareSettle  = time.Second
)

type OutcomeKind int

const (
	Success OutcomeKind = iota
	Exhausted
	Failed
)

type Outcome struct {
	Kind   OutcomeKind
	Prize  string // Success only
	Reason string // Exhausted / Failed
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return o.Prize
	case Exhausted:
		return "no chances left (" + o.Reason + ")"
	default:
		return "failed: " + o.Reason
	}
}

// API is the part of a weaiove.Session the engine drives.
type API interface {
	Share(ctx context.Context, memberID, gameID string) weaiove.Result
	Remaining(ctx context.Context, gameID string) (int, weaiove.Result)
	CheckPointsDraw(ctx context.Context, gameID string) weaiove.Result
	Draw(ctx context.Context, gameID string) (string, weaiove.Result)
}

type Engine struct {
	API   API
	Sleep clock.SleepFunc
	// OnWin is called immediately for every prize that is not points or a consolation.
	OnWin func(ctx context.Context, pool Pool, prize string)
	Log   *zap.Logger
}

// Run draws from pool at most max times and returns one outcome per attempt.
// Exhausted and Failed outcomes end the loop.
func (e *Engine) Run(ctx context.Context, pool Pool, gameID, memberID string, max int) []Outcome {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Stringer("pool", pool))
	sleep := e.Sleep
	if sleep == nil {
		sleep = clock.Sleep
	}

	limit := max
	if pool == PoolFree {
		if res := e.API.Share(ctx, memberID, gameID); !res.OK() {
			log.Warn("share for extra chance failed", zap.String("reason", res.Reason()))
		}
		if err := sleep(ctx, shareSettle); err != nil {
			return []Outcome{{Kind: Failed, Reason: err.Error()}}
		}
		hint, res := e.API.Remaining(ctx, gameID)
		if !res.OK() {
			log.Warn("remaining chances unknown, assuming none", zap.String("reason", res.Reason()))
			hint = 0
		}
		log.Info("free chances", zap.Int("remaining", hint))
		if hint < limit {
			limit = hint
		}
	}

	var out []Outcome
loop:
	for i := 0; i < limit; i++ {
		if i > 0 {
			if err := sleep(ctx, drawInterval); err != nil {
				out = append(out, Outcome{Kind: Failed, Reason: err.Error()})
				break
			}
		}

		if pool == PoolPoints {
			res := e.API.CheckPointsDraw(ctx, gameID)
			if !res.OK() {
				switch res.Condition() {
				case weaiove.CondChancesExhausted, weaiove.CondInsufficientPoints:
					out = append(out, Outcome{Kind: Exhausted, Reason: res.Reason()})
				default:
					out = append(out, Outcome{Kind: Failed, Reason: "points exchange: " + res.Reason()})
				}
				break loop
			}
		}

		prize, res := e.API.Draw(ctx, gameID)
		o := classify(prize, res)
		out = append(out, o)
		log.Info("draw", zap.Int("attempt", i+1), zap.String("outcome", o.String()))

		if o.Kind != Success {
			break
		}
		if e.OnWin != nil && weaiove.IsRealPrize(o.Prize) {
			e.OnWin(ctx, pool, o.Prize)
		}
	}
	return out
}

func classify(prize string, res weaiove.Result) Outcome {
	switch {
	case res.OK():
		return Outcome{Kind: Success, Prize: prize}
	case res.Condition() == weaiove.CondChancesExhausted:
		return Outcome{Kind: Exhausted, Reason: res.Reason()}
	case res.Kind == weaiove.KindTransport:
		return Outcome{Kind: Failed, Reason: fmt.Sprintf("request failed: %s", res.Reason())}
	default:
		return Outcome{Kind: Failed, Reason: res.Reason()}
	}
}
