package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/model"
	"github.com/t77yq/outbreak-sentinel/internal/storage"
)

// Rule management subjects
const (
	RulesListSubject   = "rules.list"
	RulesAddSubject    = "rules.add"
	RulesUpdateSubject = "rules.update"
	RulesDeleteSubject = "rules.delete"
)

// RuleUpdateRequest is the payload of a rules.update request
type RuleUpdateRequest struct {
	ID     string           `json:"id"`
	Update model.RuleUpdate `json:"update"`
}

// RuleDeleteRequest is the payload of a rules.delete request
type RuleDeleteRequest struct {
	ID string `json:"id"`
}

// RuleResponse is the reply to every rule management request
type RuleResponse struct {
	OK    bool         `json:"ok"`
	ID    string       `json:"id,omitempty"`
	Error string       `json:"error,omitempty"`
	Rules []model.Rule `json:"rules,omitempty"`
}

// RuleService exposes the rule catalog over NATS request/reply
type RuleService struct {
	nc      *nats.Conn
	catalog *detection.Catalog
	store   storage.RuleStore
	logger  *zap.Logger
	subs    []*nats.Subscription

	// serializes mutations so a rollback never undoes a concurrent change
	mu sync.Mutex
}

// NewRuleService creates a new rule management service
func NewRuleService(nc *nats.Conn, catalog *detection.Catalog, store storage.RuleStore, logger *zap.Logger) *RuleService {
	return &RuleService{
		nc:      nc,
		catalog: catalog,
		store:   store,
		logger:  logger.Named("rules"),
	}
}

// Start subscribes to the rule management subjects
func (s *RuleService) Start(ctx context.Context) error {
	handlers := map[string]func(context.Context, []byte) RuleResponse{
		RulesListSubject:   s.list,
		RulesAddSubject:    s.add,
		RulesUpdateSubject: s.update,
		RulesDeleteSubject: s.delete,
	}

	for subject, handle := range handlers {
		sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
			s.respond(msg, handle(ctx, msg.Data))
		})
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("Rule service started")
	return nil
}

// Stop unsubscribes from all rule subjects
func (s *RuleService) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn("Failed to unsubscribe",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}
	}
	s.subs = nil
}

func (s *RuleService) respond(msg *nats.Msg, resp RuleResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal rule response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("Failed to respond",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

func (s *RuleService) list(_ context.Context, _ []byte) RuleResponse {
	return RuleResponse{OK: true, Rules: s.catalog.List()}
}

// add, update and delete leave the catalog unchanged when the store rejects
// the change, so a failed reply never leaves a rule that vanishes on restart.
func (s *RuleService) add(ctx context.Context, data []byte) RuleResponse {
	var rule model.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return failed(fmt.Errorf("failed to unmarshal rule: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.catalog.Add(rule)
	if err := s.persist(ctx, id); err != nil {
		if rbErr := s.catalog.Delete(id); rbErr != nil {
			s.logger.Error("Failed to roll back rule add", zap.String("rule_id", id), zap.Error(rbErr))
		}
		return failed(err)
	}
	return RuleResponse{OK: true, ID: id}
}

func (s *RuleService) update(ctx context.Context, data []byte) RuleResponse {
	var req RuleUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return failed(fmt.Errorf("failed to unmarshal update: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.catalog.Get(req.ID)
	if err != nil {
		return failed(err)
	}
	if err := s.catalog.Update(req.ID, req.Update); err != nil {
		return failed(err)
	}
	if err := s.persist(ctx, req.ID); err != nil {
		if rbErr := s.catalog.Replace(previous); rbErr != nil {
			s.logger.Error("Failed to roll back rule update", zap.String("rule_id", req.ID), zap.Error(rbErr))
		}
		return RuleResponse{ID: req.ID, Error: err.Error()}
	}
	return RuleResponse{OK: true, ID: req.ID}
}

func (s *RuleService) delete(ctx context.Context, data []byte) RuleResponse {
	var req RuleDeleteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return failed(fmt.Errorf("failed to unmarshal delete: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.catalog.Get(req.ID); err != nil {
		return failed(err)
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, req.ID); err != nil {
			s.logger.Error("Failed to delete stored rule",
				zap.String("rule_id", req.ID),
				zap.Error(err))
			return RuleResponse{ID: req.ID, Error: err.Error()}
		}
	}
	if err := s.catalog.Delete(req.ID); err != nil {
		return failed(err)
	}
	return RuleResponse{OK: true, ID: req.ID}
}

// persist writes the catalog's current version of a rule to the store
func (s *RuleService) persist(ctx context.Context, id string) error {
	if s.store == nil {
		return nil
	}
	rule, err := s.catalog.Get(id)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, rule); err != nil {
		s.logger.Error("Failed to persist rule",
			zap.String("rule_id", id),
			zap.Error(err))
		return err
	}
	return nil
}

func failed(err error) RuleResponse {
	return RuleResponse{Error: err.Error()}
}

// LoadCatalog builds the catalog from the rule store, seeding the store with
// the given rules when it is empty.
func LoadCatalog(ctx context.Context, store storage.RuleStore, seed []model.Rule, logger *zap.Logger) (*detection.Catalog, error) {
	rules, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored rules: %w", err)
	}

	if len(rules) > 0 {
		logger.Info("Loaded rules from store", zap.Int("count", len(rules)))
		return detection.NewCatalog(logger, rules...)
	}

	catalog, err := detection.NewCatalog(logger, seed...)
	if err != nil {
		return nil, err
	}
	for _, rule := range catalog.List() {
		if err := store.Save(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
	}
	logger.Info("Seeded rule store", zap.Int("count", len(seed)))
	return catalog, nil
}

// RequestRules is a client helper for the rule management subjects
func RequestRules(nc *nats.Conn, subject string, payload interface{}, timeout time.Duration) (*RuleResponse, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	msg, err := nc.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", subject, err)
	}

	var resp RuleResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}
