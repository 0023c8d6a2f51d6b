package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"quotes-api/internal/config"
	"quotes-api/internal/models"
)

// QuoteSource is the resolver surface the warmer needs.
type QuoteSource interface {
	GetQuotes(ctx context.Context, market models.Market, symbols []string) []models.Quote
}

// Scheduler keeps the cache warm for the configured watchlists so the first
// request after a quiet period does not pay the full cascade.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.SchedulerConfig
	source QuoteSource
	log    *logrus.Entry
}

// New builds a scheduler. Call Start to begin warming.
func New(cfg config.SchedulerConfig, source QuoteSource) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		source: source,
		log:    logrus.WithField("component", "scheduler"),
	}
}

// Start registers the warm job and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.WarmSpec, s.warm); err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("spec", s.cfg.WarmSpec).Info("cache warmer started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) warm() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for market, syms := range map[models.Market][]string{
		models.MarketUS:     s.cfg.USSymbols,
		models.MarketMX:     s.cfg.MXSymbols,
		models.MarketCrypto: s.cfg.CryptoSymbols,
	} {
		if len(syms) == 0 {
			continue
		}
		got := s.source.GetQuotes(ctx, market, syms)
		s.log.WithFields(logrus.Fields{
			"market":    market,
			"requested": len(syms),
			"resolved":  len(got),
		}).Debug("warm pass")
	}
}
