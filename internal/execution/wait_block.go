package execution

import (
	"context"
	"log"
	"time"

	"nodelink/internal/blocks"
	"nodelink/internal/models"
)

// WaitBlock pauses the run for delay seconds, then sets done
type WaitBlock struct {
	delay float64       // seconds
	max   time.Duration // cap from config
}

func (w *WaitBlock) Type() blocks.Type { return blocks.TypeWait }

func (w *WaitBlock) RegisterPorts(b *blocks.Block) {
	b.RegisterCoreInput(blocks.TriggerKey, nil, blocks.PortMeta{Hidden: true})
	b.RegisterCoreOutput("done", blocks.PortMeta{DataType: blocks.DataBoolean})
}

func (w *WaitBlock) Configure(_ *blocks.Block, cfg models.BlockConfig) error {
	if cfg.Delay != nil {
		w.delay = *cfg.Delay
	}
	return nil
}

// duration converts the delay, treating negatives as zero and applying the cap
func (w *WaitBlock) duration() time.Duration {
	if w.delay <= 0 {
		return 0
	}
	d := time.Duration(w.delay * float64(time.Second))
	if w.max > 0 && d > w.max {
		d = w.max
	}
	return d
}

func (w *WaitBlock) Execute(ctx context.Context, b *blocks.Block) error {
	d := w.duration()
	b.SetOutput("done", false)
	log.Printf("⏳ [WAIT] Block '%s': waiting %v", b.Name, d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.SetOutput("done", true)
	return nil
}

func (w *WaitBlock) Serialize(cfg *models.BlockConfig) {
	cfg.Delay = models.Float64Ptr(w.delay)
}
