package harvest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Action classifies session moves for pacing purposes.
type Action string

// Paced action classes.
const (
	ActionNavigate Action = "navigate"
	ActionOpen     Action = "open"
	ActionScroll   Action = "scroll"
	ActionRead     Action = "read"
)

// Pacer inserts delays between session actions. The delays emulate human
// cadence and are not correctness-critical, but they must stay interruptible.
type Pacer interface {
	Pause(ctx context.Context, action Action)
}

// NopPacer skips all delays. Tests use it.
type NopPacer struct{}

// Pause does nothing.
func (NopPacer) Pause(context.Context, Action) {}

// pacingBand is the jitter range for one action class.
type pacingBand struct {
	min time.Duration
	max time.Duration
}

var humanBands = map[Action]pacingBand{
	ActionNavigate: {1500 * time.Millisecond, 3 * time.Second},
	ActionOpen:     {time.Second, 2 * time.Second},
	ActionScroll:   {500 * time.Millisecond, 1500 * time.Millisecond},
	ActionRead:     {300 * time.Millisecond, 800 * time.Millisecond},
}

// HumanPacer waits a jittered, class-dependent interval per action and caps
// the overall action rate with a token bucket.
type HumanPacer struct {
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

// NewHumanPacer builds a pacer allowing roughly two actions per second in
// short bursts on top of the per-class jitter.
func NewHumanPacer() *HumanPacer {
	return &HumanPacer{
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pause blocks for the action's jittered interval or until ctx ends.
func (p *HumanPacer) Pause(ctx context.Context, action Action) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	band, ok := humanBands[action]
	if !ok {
		band = humanBands[ActionRead]
	}

	p.mu.Lock()
	delay := band.min + time.Duration(p.rng.Int63n(int64(band.max-band.min)))
	p.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
