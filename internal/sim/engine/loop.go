package engine

import (
	"context"
	"errors"
	"time"

	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/timers"
)

var ErrBusy = errors.New("engine inbox full")

const minTick = 10 * time.Millisecond

// Run owns the engine until ctx is done. On exit every tracked zone is erased.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Settings.Tick.Duration()
	if interval < minTick {
		interval = minTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer e.shutdown()

	e.logger.Printf("engine running tick=%s raid=%v combat=%v", interval, e.cfg.Raid.Block.Enabled, e.cfg.Combat.Block.Enabled)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-e.inbox:
			e.Handle(in)
		case <-ticker.C:
			e.FireDue()
			e.publishMetrics()
		}
	}
}

func (e *Engine) shutdown() {
	if e.zones == nil {
		return
	}
	if n := e.zones.EraseAll(); n > 0 {
		e.logger.Printf("erased %d raid zones", n)
	}
}

// FireDue runs every timer due at the current time and returns how many fired.
// Stale handles are ignored by the feature that owns them.
func (e *Engine) FireDue() int {
	due := e.timers.Due(e.now())
	for _, f := range due {
		switch f.Key.Kind {
		case timers.KindExpire:
			e.life.HandleExpire(f)
		case timers.KindUnblock:
			e.life.HandleUnblock(f)
		case timers.KindMarker:
			e.life.HandleMarker(f)
		case timers.KindZone:
			if e.zones != nil {
				e.zones.HandleExpire(f)
			}
		}
	}
	e.fired.Add(uint64(len(due)))
	return len(due)
}

// TrySubmit queues in without blocking. It reports false when the inbox is full.
func (e *Engine) TrySubmit(in Input) bool {
	select {
	case e.inbox <- in:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Submit queues in, waiting for room until ctx is done.
func (e *Engine) Submit(ctx context.Context, in Input) error {
	select {
	case e.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func request[T any](ctx context.Context, e *Engine, in Input, resp chan T) (T, error) {
	var zero T
	if err := e.Submit(ctx, in); err != nil {
		return zero, err
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Gate answers a gating request from any goroutine.
func (e *Engine) Gate(ctx context.Context, req gating.Request) (gating.Result, error) {
	resp := make(chan gating.Result, 1)
	return request(ctx, e, GateReq{Req: req, Resp: resp}, resp)
}

func (e *Engine) Status(ctx context.Context, actor string) (Status, error) {
	resp := make(chan Status, 1)
	return request(ctx, e, StatusReq{Actor: actor, Resp: resp}, resp)
}

// StopBlock stops kind for actor, or every kind when kind is 0, from any goroutine.
func (e *Engine) StopBlock(ctx context.Context, actor string, kind model.Kind) (int, error) {
	resp := make(chan int, 1)
	return request(ctx, e, StopReq{Actor: actor, Kind: kind, Resp: resp}, resp)
}

func (e *Engine) State(ctx context.Context) (State, error) {
	resp := make(chan State, 1)
	return request(ctx, e, StateReq{Resp: resp}, resp)
}
