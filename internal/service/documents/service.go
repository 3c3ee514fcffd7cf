package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/teamroster/internal/docpath"
	"github.com/splax/teamroster/internal/repository"
	"github.com/splax/teamroster/internal/service/rules"
	"github.com/splax/teamroster/internal/ws"
)

// Snapshot is the payload pushed to subscribers.
type Snapshot struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Service exposes the rule-checked document tree.
type Service struct {
	repo   repository.DocumentRepository
	policy rules.Policy
	hub    *ws.Hub
	feed   Feed
	origin string
	logger *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithFeed shares change notifications with other instances.
func WithFeed(feed Feed) Option {
	return func(s *Service) {
		s.feed = feed
	}
}

// New constructs a Service and starts its subscription hub.
func New(repo repository.DocumentRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		policy: rules.New(repo),
		origin: uuid.NewString(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = ws.NewHub(s.render, logger)
	return s
}

// Get reads the value at path.
func (s *Service) Get(ctx context.Context, actor rules.Actor, path string) (any, error) {
	clean, err := docpath.Clean(path)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Read(actor, clean); err != nil {
		return nil, err
	}
	return s.repo.GetNode(ctx, clean)
}

// Set replaces the subtree at path. A nil or empty value removes it.
func (s *Service) Set(ctx context.Context, actor rules.Actor, path string, value any) error {
	clean, err := docpath.Clean(path)
	if err != nil {
		return err
	}
	leaves, err := docpath.Flatten(clean, value)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		value = nil
	}
	if err := s.policy.Write(ctx, actor, clean, value); err != nil {
		return err
	}
	if err := s.repo.SetNode(ctx, clean, value); err != nil {
		s.recordWrite("set", err)
		return err
	}
	s.recordWrite("set", nil)
	s.logger.Debug("document set", "path", clean, "user_id", actor.UserID)
	s.notify(ctx, clean)
	return nil
}

// Update applies every key of patch below path in one atomic write.
func (s *Service) Update(ctx context.Context, actor rules.Actor, path string, patch map[string]any) error {
	clean, err := docpath.Clean(path)
	if err != nil {
		return err
	}
	targets, err := docpath.PatchTargets(clean, patch)
	if err != nil {
		return err
	}
	changed := make([]string, 0, len(targets))
	for _, target := range targets {
		leaves, err := docpath.Flatten(target.Path, target.Value)
		if err != nil {
			return err
		}
		value := target.Value
		if len(leaves) == 0 {
			value = nil
		}
		if err := s.policy.Write(ctx, actor, target.Path, value); err != nil {
			return fmt.Errorf("%s: %w", target.Path, err)
		}
		changed = append(changed, target.Path)
	}
	if err := s.repo.UpdateNode(ctx, clean, patch); err != nil {
		s.recordWrite("update", err)
		return err
	}
	s.recordWrite("update", nil)
	s.logger.Debug("document updated", "path", clean, "keys", len(targets), "user_id", actor.UserID)
	s.notify(ctx, changed...)
	return nil
}

// Remove deletes the subtree at path. Removing an absent path succeeds.
func (s *Service) Remove(ctx context.Context, actor rules.Actor, path string) error {
	clean, err := docpath.Clean(path)
	if err != nil {
		return err
	}
	if err := s.policy.Write(ctx, actor, clean, nil); err != nil {
		return err
	}
	if err := s.repo.RemoveNode(ctx, clean); err != nil {
		s.recordWrite("remove", err)
		return err
	}
	s.recordWrite("remove", nil)
	s.logger.Debug("document removed", "path", clean, "user_id", actor.UserID)
	s.notify(ctx, clean)
	return nil
}

// Subscribe registers sub for snapshots of path. The initial snapshot is delivered first;
// the disposer unregisters and closes sub.
func (s *Service) Subscribe(ctx context.Context, actor rules.Actor, path string, sub ws.Subscriber) (func(), error) {
	clean, err := docpath.Clean(path)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Read(actor, clean); err != nil {
		return nil, err
	}
	return s.hub.Register(clean, sub), nil
}

// Subscribers reports the number of live subscriptions on this instance.
func (s *Service) Subscribers() int {
	return s.hub.Subscribers()
}

// Run relays the change feed into the local hub until ctx is done. Without a feed it
// simply blocks.
func (s *Service) Run(ctx context.Context) error {
	if s.feed == nil {
		<-ctx.Done()
		return nil
	}
	err := s.feed.Listen(ctx, func(change Change) {
		if change.Origin == s.origin {
			return
		}
		feedEvents.WithLabelValues("received").Inc()
		s.hub.Broadcast(change.Paths...)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the hub and closes every subscriber.
func (s *Service) Close() {
	s.hub.Stop()
}

func (s *Service) notify(ctx context.Context, paths ...string) {
	s.hub.Broadcast(paths...)
	if s.feed == nil {
		return
	}
	change := Change{Origin: s.origin, Paths: paths}
	if err := s.feed.Publish(ctx, change); err != nil {
		feedEvents.WithLabelValues("publish_failed").Inc()
		s.logger.Warn("publish change failed", "paths", paths, "error", err)
		return
	}
	feedEvents.WithLabelValues("published").Inc()
}

func (s *Service) render(ctx context.Context, path string) ([]byte, error) {
	value, err := s.repo.GetNode(ctx, path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Snapshot{Path: path, Value: value})
}

func (s *Service) recordWrite(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Error("document write failed", "op", op, "error", err)
	}
	storeWrites.WithLabelValues(op, result).Inc()
}
