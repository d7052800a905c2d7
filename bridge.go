// Package bridge synchronizes an advertising platform with a CRM:
// change events stream in from the CRM, are durably logged and routed into
// an outbox of remote mutations, while delta pulls mirror remote entities
// back into local snapshots. Delivery is at-least-once end to end;
// idempotency is pushed to downstream handlers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/config"
	"github.com/adflowio/bridge/logger"
	"github.com/adflowio/bridge/pipeline"
	"github.com/adflowio/bridge/processor"
	"github.com/adflowio/bridge/puller"
	"github.com/adflowio/bridge/router"
	"github.com/adflowio/bridge/store"
	"github.com/adflowio/bridge/stream"
)

const subscriberRestartDelay = 5 * time.Second

type Bridge interface {
	Start(ctx context.Context)
	WaitUntilReady(ctx context.Context) error
	Close()
	GetConfig() *config.Config

	// Orchestration trigger surface
	RunPipeline(ctx context.Context) (string, error)
	RunReconcile(ctx context.Context) (string, error)
}

// Dependencies are the external collaborators: the CRM event bus, the
// schema-aware payload codec and the advertising API client.
type Dependencies struct {
	Stream  stream.Client
	Decoder stream.Decoder
	Ads     ads.Client
}

type bridge struct {
	// Configuration and dependencies
	cfg  *config.Config
	deps Dependencies

	// Components
	store     *store.Store
	puller    *puller.Puller
	processor *processor.Processor
	pipeline  *pipeline.Pipeline

	// Channels
	cancelCh chan os.Signal
	readyCh  chan struct{}

	// Synchronization (always last)
	cancelChOnce sync.Once
	readyChOnce  sync.Once
}

func New(ctx context.Context, cfg config.Config, deps Dependencies) (Bridge, error) {
	cfg.SetDefault()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	cfg.Print()

	logger.SetLevel(cfg.Logger.LogLevel)

	if deps.Stream == nil || deps.Decoder == nil || deps.Ads == nil {
		return nil, errors.New("stream client, decoder and ads client are required")
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	publisher := stream.NewPublisher(deps.Stream, deps.Decoder)
	pull := puller.New(st, deps.Ads, publisher, cfg.Puller)
	proc := processor.New(st, deps.Ads, cfg.Processor.BatchSize)

	stages := []pipeline.Stage{
		{Name: "pull_campaign_deltas", Run: pull.PullCampaigns},
		{Name: "push_campaign_changes", Run: func(ctx context.Context) (int, error) {
			return proc.Drain(ctx, store.ResourceCampaign)
		}},
		{Name: "push_lead_changes", Run: func(ctx context.Context) (int, error) {
			return proc.Drain(ctx, store.ResourceLead)
		}},
		{Name: "pull_lead_deltas", Run: pull.PullLeads},
	}

	return &bridge{
		cfg:       &cfg,
		deps:      deps,
		store:     st,
		puller:    pull,
		processor: proc,
		pipeline:  pipeline.New(stages...),
		cancelCh:  make(chan os.Signal, 1),
		readyCh:   make(chan struct{}, 1),
	}, nil
}

// Start migrates the store, launches one subscriber per configured topic
// and blocks until a termination signal or context cancellation.
func (b *bridge) Start(ctx context.Context) {
	if err := b.store.Migrate(ctx); err != nil {
		logger.WithError(err, "store migration failed")
		return
	}

	for _, topic := range b.cfg.Topics {
		go b.runSubscriber(ctx, topic)
	}

	signal.Notify(b.cancelCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGABRT, syscall.SIGQUIT)

	b.readyCh <- struct{}{}

	select {
	case <-b.cancelCh:
		logger.Debug("cancel channel triggered")
	case <-ctx.Done():
		logger.Debug("context cancelled", "reason", ctx.Err())
	}
}

// runSubscriber keeps one topic's subscriber alive, resuming from the
// stored replay token after every exit. Transient stream failures back off
// before reconnecting.
func (b *bridge) runSubscriber(ctx context.Context, topic config.TopicConfig) {
	for {
		sub := stream.NewSubscriber(b.deps.Stream, b.deps.Decoder, b.store, router.Route, topic)

		received, err := sub.Run(ctx)
		if ctx.Err() != nil {
			logger.Info("subscriber stopped", "topic", topic.Name, "received", received)
			return
		}
		if err != nil {
			logger.Error("subscriber failed, reconnecting", "topic", topic.Name, "received", received, "error", err)
		} else {
			logger.Info("stream ended, reconnecting", "topic", topic.Name, "received", received)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(subscriberRestartDelay):
		}
	}
}

// RunPipeline triggers the near-real-time sync chain: pull campaign
// deltas, push campaign changes, push lead changes, pull lead deltas.
func (b *bridge) RunPipeline(ctx context.Context) (string, error) {
	return b.pipeline.RunChain(ctx)
}

// RunReconcile triggers the periodic full reconciliation: entries stuck in
// processing past the staleness threshold are returned to pending, then
// all stages run independently.
func (b *bridge) RunReconcile(ctx context.Context) (string, error) {
	staleness := b.cfg.Processor.ClaimStaleness.Std()
	for _, resource := range []string{store.ResourceCampaign, store.ResourceLead} {
		if _, err := b.store.ReclaimStuck(ctx, resource, staleness); err != nil {
			logger.Error("stuck entry reclaim failed", "resource", resource, "error", err)
		}
	}

	return b.pipeline.RunGroup(ctx)
}

func (b *bridge) WaitUntilReady(ctx context.Context) error {
	select {
	case <-b.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *bridge) Close() {
	logger.Debug("[bridge] closing")

	b.cancelChOnce.Do(func() {
		close(b.cancelCh)
	})
	b.readyChOnce.Do(func() {
		close(b.readyCh)
	})

	if b.store != nil {
		b.store.Close()
	}

	logger.Info("[bridge] closed")
}

func (b *bridge) GetConfig() *config.Config {
	return b.cfg
}
