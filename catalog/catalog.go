package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

const namePrefix = "name/"

// Catalog registers rules and strategies under content-addressed refs and
// optional names. Parsed definitions are cached in memory; the backing
// Store holds canonical bytes, so two catalogs over the same store agree on
// every ref.
type Catalog struct {
	mu         sync.RWMutex
	store      Store
	logger     *slog.Logger
	rules      map[Ref]*rule.Rule
	strategies map[Ref]strategy.Op
	ruleNames  map[string]Ref
	stratNames map[string]Ref
}

// New returns a catalog over the given store. A nil store gets an in-memory
// one; a nil logger falls back to slog.Default().
func New(store Store, logger *slog.Logger) *Catalog {
	if store == nil {
		store = NewMemStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:      store,
		logger:     logger,
		rules:      make(map[Ref]*rule.Rule),
		strategies: make(map[Ref]strategy.Op),
		ruleNames:  make(map[string]Ref),
		stratNames: make(map[string]Ref),
	}
}

// PutRule validates and registers a rule, returning its ref. Registering
// the same content again is idempotent; binding an existing name to
// different content is rejected.
func (c *Catalog) PutRule(ctx context.Context, r *rule.Rule) (Ref, error) {
	if r == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "PutRule", "register nil rule")
	}
	if err := r.Validate(); err != nil {
		return "", err
	}
	ref, canonical, err := RuleRef(r)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bound, ok := c.ruleNames[r.Name]; ok && bound != ref {
		return "", errors.WrapInvalid(errors.ErrDuplicateName, "Catalog", "PutRule",
			fmt.Sprintf("bind rule name %q to %s, already bound to %s", r.Name, ref, bound))
	}
	if err := c.store.Put(ctx, BucketRules, ref.String(), canonical); err != nil {
		return "", errors.WrapTransient(err, "Catalog", "PutRule", "store rule payload")
	}
	if err := c.store.Put(ctx, BucketRules, namePrefix+r.Name, []byte(ref)); err != nil {
		return "", errors.WrapTransient(err, "Catalog", "PutRule", "store rule name index")
	}
	c.rules[ref] = r
	c.ruleNames[r.Name] = ref
	c.logger.Debug("registered rule", "name", r.Name, "ref", ref)
	return ref, nil
}

// RuleByRef resolves a rule by its content-addressed ref.
func (c *Catalog) RuleByRef(ctx context.Context, ref Ref) (*rule.Rule, error) {
	c.mu.RLock()
	cached, ok := c.rules[ref]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	payload, err := c.store.Get(ctx, BucketRules, ref.String())
	if err != nil {
		return nil, errors.Wrap(err, "Catalog", "RuleByRef", fmt.Sprintf("load rule %s", ref))
	}
	r, err := rule.ParseRule(payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rules[ref] = r
	c.mu.Unlock()
	return r, nil
}

// RuleByName resolves a rule by its registered name. Unknown names fail
// with a did-you-mean suggestion when a close name exists.
func (c *Catalog) RuleByName(ctx context.Context, name string) (*rule.Rule, error) {
	c.mu.RLock()
	ref, ok := c.ruleNames[name]
	c.mu.RUnlock()
	if !ok {
		payload, err := c.store.Get(ctx, BucketRules, namePrefix+name)
		if err != nil {
			known, _ := c.RuleNames(ctx)
			return nil, unknownName("Catalog", "RuleByName", "rule", name, known)
		}
		ref = Ref(payload)
		c.mu.Lock()
		c.ruleNames[name] = ref
		c.mu.Unlock()
	}
	return c.RuleByRef(ctx, ref)
}

// RuleNames lists the registered rule names in sorted order.
func (c *Catalog) RuleNames(ctx context.Context) ([]string, error) {
	return c.names(ctx, BucketRules, c.ruleNames)
}

// ResolveRule accepts either a ref ("sha256:...") or a registered name.
func (c *Catalog) ResolveRule(ctx context.Context, refOrName string) (*rule.Rule, error) {
	if strings.HasPrefix(refOrName, refPrefix) {
		ref, err := ParseRef(refOrName)
		if err != nil {
			return nil, err
		}
		return c.RuleByRef(ctx, ref)
	}
	return c.RuleByName(ctx, refOrName)
}

// PutStrategy validates and registers a strategy tree under an optional
// name, returning its ref. An empty name registers content only.
func (c *Catalog) PutStrategy(ctx context.Context, name string, op strategy.Op) (Ref, error) {
	if op == nil {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "PutStrategy",
			"register nil strategy")
	}
	ref, canonical, err := StrategyRef(op)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if name != "" {
		if bound, ok := c.stratNames[name]; ok && bound != ref {
			return "", errors.WrapInvalid(errors.ErrDuplicateName, "Catalog", "PutStrategy",
				fmt.Sprintf("bind strategy name %q to %s, already bound to %s", name, ref, bound))
		}
	}
	if err := c.store.Put(ctx, BucketStrategies, ref.String(), canonical); err != nil {
		return "", errors.WrapTransient(err, "Catalog", "PutStrategy", "store strategy payload")
	}
	if name != "" {
		if err := c.store.Put(ctx, BucketStrategies, namePrefix+name, []byte(ref)); err != nil {
			return "", errors.WrapTransient(err, "Catalog", "PutStrategy", "store strategy name index")
		}
		c.stratNames[name] = ref
	}
	c.strategies[ref] = op
	c.logger.Debug("registered strategy", "name", name, "ref", ref, "kind", op.Kind())
	return ref, nil
}

// StrategyByRef resolves a strategy by its content-addressed ref.
func (c *Catalog) StrategyByRef(ctx context.Context, ref Ref) (strategy.Op, error) {
	c.mu.RLock()
	cached, ok := c.strategies[ref]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	payload, err := c.store.Get(ctx, BucketStrategies, ref.String())
	if err != nil {
		return nil, errors.Wrap(err, "Catalog", "StrategyByRef", fmt.Sprintf("load strategy %s", ref))
	}
	op, err := strategy.Parse(payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.strategies[ref] = op
	c.mu.Unlock()
	return op, nil
}

// StrategyByName resolves a strategy by its registered name.
func (c *Catalog) StrategyByName(ctx context.Context, name string) (strategy.Op, error) {
	c.mu.RLock()
	ref, ok := c.stratNames[name]
	c.mu.RUnlock()
	if !ok {
		payload, err := c.store.Get(ctx, BucketStrategies, namePrefix+name)
		if err != nil {
			known, _ := c.StrategyNames(ctx)
			return nil, unknownName("Catalog", "StrategyByName", "strategy", name, known)
		}
		ref = Ref(payload)
		c.mu.Lock()
		c.stratNames[name] = ref
		c.mu.Unlock()
	}
	return c.StrategyByRef(ctx, ref)
}

// StrategyNames lists the registered strategy names in sorted order.
func (c *Catalog) StrategyNames(ctx context.Context) ([]string, error) {
	return c.names(ctx, BucketStrategies, c.stratNames)
}

// ResolveStrategy accepts either a ref ("sha256:...") or a registered name.
func (c *Catalog) ResolveStrategy(ctx context.Context, refOrName string) (strategy.Op, error) {
	if strings.HasPrefix(refOrName, refPrefix) {
		ref, err := ParseRef(refOrName)
		if err != nil {
			return nil, err
		}
		return c.StrategyByRef(ctx, ref)
	}
	return c.StrategyByName(ctx, refOrName)
}

func (c *Catalog) names(ctx context.Context, bucket string, cache map[string]Ref) ([]string, error) {
	set := make(map[string]struct{})
	c.mu.RLock()
	for name := range cache {
		set[name] = struct{}{}
	}
	c.mu.RUnlock()

	keys, err := c.store.Keys(ctx, bucket)
	if err != nil {
		return nil, errors.WrapTransient(err, "Catalog", "names", "list store keys")
	}
	for _, k := range keys {
		if rest, ok := strings.CutPrefix(k, namePrefix); ok {
			set[rest] = struct{}{}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// unknownName builds the not-registered error, attaching the closest known
// name when one is within edit distance 3.
func unknownName(component, method, kind, name string, known []string) error {
	action := fmt.Sprintf("resolve %s %q", kind, name)
	if s := closest(name, known); s != "" {
		action = fmt.Sprintf("resolve %s %q (did you mean %q?)", kind, name, s)
	}
	return errors.WrapInvalid(errors.ErrNotRegistered, component, method, action)
}

func closest(name string, known []string) string {
	best, bestDist := "", 4
	for _, k := range known {
		if d := levenshtein.Distance(name, k, nil); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
