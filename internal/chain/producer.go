package chain

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Producer advances a BlockClock on a cron schedule.
type Producer struct {
	Cron   *cron.Cron
	Clock  *BlockClock
	logger *slog.Logger
}

// NewProducer creates a producer for clock. spec is a cron expression
// with a seconds field or a descriptor such as "@every 3s".
func NewProducer(clock *BlockClock, spec string, logger *slog.Logger) (*Producer, error) {
	p := &Producer{
		Cron:   cron.New(cron.WithSeconds()),
		Clock:  clock,
		logger: logger,
	}
	if _, err := p.Cron.AddFunc(spec, p.produce); err != nil {
		return nil, fmt.Errorf("register block producer %q: %w", spec, err)
	}
	return p, nil
}

// Start starts producing blocks.
func (p *Producer) Start() {
	p.Cron.Start()
	p.logger.Info("block producer started", "height", p.Clock.Block())
}

// Stop stops the producer and waits for a running tick to finish.
func (p *Producer) Stop() {
	<-p.Cron.Stop().Done()
	p.logger.Info("block producer stopped", "height", p.Clock.Block())
}

func (p *Producer) produce() {
	h := p.Clock.Advance()
	p.logger.Debug("block produced", "height", h)
}
