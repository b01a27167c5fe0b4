package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/openrisk/kestrel/internal/domain"
)

type compiledRule struct {
	rule    *domain.Rule
	program cel.Program
}

// Snapshot is an immutable view of the active rule set in evaluation
// order. Evaluations read a snapshot, so a concurrent toggle or update is
// observed entirely or not at all, never as a torn state.
type Snapshot struct {
	Version int64

	rules         []*compiledRule
	needsVelocity bool
}

// Len returns the number of active rules in the snapshot.
func (s *Snapshot) Len() int { return len(s.rules) }

// Store owns the rule set: CRUD, activation toggles and ordering.
// Mutations write through to the repository first, then swap in a fresh
// snapshot (copy-on-write).
type Store struct {
	mu   sync.RWMutex
	repo domain.Repository // nil in memory-only mode
	env  *cel.Env

	rules   map[string]*compiledRule
	seq     int64
	version int64
	snap    atomic.Pointer[Snapshot]
}

// NewStore creates a rule store and loads persisted rules. A stored rule
// that no longer compiles is skipped and logged, never silently matched.
func NewStore(ctx context.Context, repo domain.Repository) (*Store, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	s := &Store{
		repo:  repo,
		env:   env,
		rules: make(map[string]*compiledRule),
	}

	if repo != nil {
		persisted, err := repo.ListRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		for _, r := range persisted {
			program, err := compilePredicate(env, r.Predicate)
			if err != nil {
				slog.Warn("skipping stored rule that fails to compile",
					"rule_id", r.ID,
					"error", err,
				)
				continue
			}
			s.rules[r.ID] = &compiledRule{rule: r, program: program}
			if r.Seq > s.seq {
				s.seq = r.Seq
			}
		}
	}

	s.rebuildLocked()
	return s, nil
}

// Snapshot returns the current active rule set view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Create validates, compiles and persists a new rule. The passed rule's
// ID may be empty, in which case one is assigned.
func (s *Store) Create(ctx context.Context, r *domain.Rule) (*domain.Rule, error) {
	if err := validateRule(r); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := normalizeRule(r)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, exists := s.rules[stored.ID]; exists {
		return nil, fmt.Errorf("%w: rule %q already exists", domain.ErrValidation, stored.ID)
	}

	program, err := compilePredicate(s.env, stored.Predicate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored.Seq = s.seq + 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.persist(ctx, stored); err != nil {
		return nil, err
	}

	s.seq = stored.Seq
	s.rules[stored.ID] = &compiledRule{rule: stored, program: program}
	s.rebuildLocked()

	return stored, nil
}

// Update replaces a rule's mutable fields by id. The creation sequence is
// preserved so evaluation order survives edits.
func (s *Store) Update(ctx context.Context, id string, upd *domain.Rule) (*domain.Rule, error) {
	if err := validateRule(upd); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %q", domain.ErrNotFound, id)
	}

	stored := normalizeRule(upd)
	stored.ID = id
	stored.Seq = current.rule.Seq
	stored.CreatedAt = current.rule.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	program, err := compilePredicate(s.env, stored.Predicate)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, stored); err != nil {
		return nil, err
	}

	s.rules[id] = &compiledRule{rule: stored, program: program}
	s.rebuildLocked()

	return stored, nil
}

// Toggle flips only the activation flag. The flip is atomic with respect
// to concurrent evaluations: readers see the previous or the new
// snapshot.
func (s *Store) Toggle(ctx context.Context, id string, active bool) (*domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %q", domain.ErrNotFound, id)
	}

	toggled := *current.rule
	toggled.Active = active
	toggled.UpdatedAt = time.Now().UTC()

	if err := s.persist(ctx, &toggled); err != nil {
		return nil, err
	}

	s.rules[id] = &compiledRule{rule: &toggled, program: current.program}
	s.rebuildLocked()

	return &toggled, nil
}

// Delete removes a rule from future evaluations. Past decisions that
// reference it are history and stay untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: rule %q", domain.ErrNotFound, id)
	}

	if s.repo != nil {
		if err := s.repo.DeleteRule(ctx, id); err != nil {
			return fmt.Errorf("%w: delete rule %q: %v", domain.ErrPersistence, id, err)
		}
	}

	delete(s.rules, id)
	s.rebuildLocked()
	return nil
}

// Get returns a rule by id.
func (s *Store) Get(id string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cr, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %q", domain.ErrNotFound, id)
	}
	return cr.rule, nil
}

// List returns all rules (active and inactive) in evaluation order,
// optionally filtered by rule type.
func (s *Store) List(typeFilter domain.RuleType) []*domain.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Rule, 0, len(s.rules))
	for _, cr := range s.rules {
		if typeFilter != "" && cr.rule.Type != typeFilter {
			continue
		}
		out = append(out, cr.rule)
	}
	sortRules(out)
	return out
}

// Count returns the number of rules in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

func (s *Store) persist(ctx context.Context, r *domain.Rule) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveRule(ctx, r); err != nil {
		return fmt.Errorf("%w: save rule %q: %v", domain.ErrPersistence, r.ID, err)
	}
	return nil
}

// rebuildLocked recomputes the active snapshot. Caller holds mu.
func (s *Store) rebuildLocked() {
	active := make([]*compiledRule, 0, len(s.rules))
	needsVelocity := false
	for _, cr := range s.rules {
		if !cr.rule.Active {
			continue
		}
		active = append(active, cr)
		if cr.rule.Predicate.Field == FieldVelocityCount {
			needsVelocity = true
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].rule, active[j].rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Seq < b.Seq
	})

	s.version++
	s.snap.Store(&Snapshot{
		Version:       s.version,
		rules:         active,
		needsVelocity: needsVelocity,
	})
}

func sortRules(rs []*domain.Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority < rs[j].Priority
		}
		return rs[i].Seq < rs[j].Seq
	})
}

func validateRule(r *domain.Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", domain.ErrValidation)
	}
	if _, err := domain.ParseRuleType(string(r.Type)); err != nil {
		return err
	}
	if r.Severity < 0 || r.Severity > 1 {
		return fmt.Errorf("%w: severity must be in [0,1]", domain.ErrValidation)
	}
	return ValidatePredicate(r.Predicate)
}

// normalizeRule copies the input and applies creation defaults.
func normalizeRule(r *domain.Rule) *domain.Rule {
	stored := *r
	if stored.Severity == 0 {
		stored.Severity = 1.0
	}
	if stored.Reason == "" {
		stored.Reason = stored.Name
	}
	return &stored
}
