package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"action-limiter/actionlimit/domain"

	"golang.org/x/time/rate"
)

// Service concentra a regra de aplicação do limitador por categoria.
//
// Ele não sabe nada sobre HTTP nem sobre o backend de persistência concreto.
// É seguro para uso concorrente: toda sequência ler-podar-gravar roda sob mu.
type Service struct {
	mu       sync.Mutex
	policies domain.PolicyTable
	store    domain.HistoryStore
	stats    domain.StatsStore
	clock    domain.Clock
	logger   *slog.Logger
	prefix   string

	cache map[domain.Category]*cacheEntry

	// storageWarn limita os Warn quando o storage está fora do ar; as demais
	// falhas saem em Debug com a contagem acumulada.
	storageWarn     rate.Sometimes
	storageFailures int

	// categorias sem política já avisadas em Warn
	missWarned sync.Map
}

type cacheEntry struct {
	history domain.History
	// dirty indica que a última gravação falhou: o cache passa a ser a fonte
	// de verdade até uma gravação dar certo.
	dirty bool
}

type Option func(*Service)

func WithPolicies(p domain.PolicyTable) Option {
	return func(s *Service) { s.policies = p }
}

// WithStore define onde o histórico é persistido. Sem store, o histórico vive
// apenas em memória durante o processo.
func WithStore(st domain.HistoryStore) Option {
	return func(s *Service) { s.store = st }
}

func WithStats(st domain.StatsStore) Option {
	return func(s *Service) { s.stats = st }
}

func WithClock(c domain.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *Service) { s.prefix = prefix }
}

func New(opts ...Option) *Service {
	s := &Service{
		policies:    domain.DefaultPolicies(),
		clock:       time.Now,
		logger:      slog.Default(),
		prefix:      domain.DefaultKeyPrefix,
		cache:       make(map[domain.Category]*cacheEntry),
		storageWarn: rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policies == nil {
		s.policies = domain.PolicyTable{}
	}
	return s
}

// Policies devolve uma cópia da tabela em uso.
func (s *Service) Policies() domain.PolicyTable {
	return s.policies.Merge(nil)
}

// Inspect devolve o estado atual da categoria, podando entradas expiradas.
// Se a poda encolheu o histórico, o resultado é persistido.
func (s *Service) Inspect(ctx context.Context, c domain.Category) domain.State {
	p, ok := s.policies.Lookup(c)
	if !ok {
		s.policyMiss(c)
		return domain.UnlimitedState(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	current := s.load(ctx, c)
	pruned := current.Prune(now, p.Window)
	if len(pruned) == len(current) {
		s.remember(c, pruned)
		return domain.Derive(c, p, pruned)
	}

	written, _ := s.mutate(ctx, c, now, p, func(h domain.History) (domain.History, bool) {
		return h, true
	})
	return domain.Derive(c, p, written)
}

// RecordAction registra uma ação se ainda houver capacidade na janela.
//
// Devolve false quando o limite foi atingido; nesse caso nada é acrescentado,
// mas o histórico podado é persistido. Falhas de persistência não mudam o
// retorno.
func (s *Service) RecordAction(ctx context.Context, c domain.Category) bool {
	p, ok := s.policies.Lookup(c)
	if !ok {
		s.policyMiss(c)
		s.record(ctx, domain.StatsEvent{Category: c, Allowed: true, Unlimited: true, At: s.clock()})
		return true
	}

	s.mu.Lock()
	now := s.clock()
	_, allowed := s.mutate(ctx, c, now, p, func(h domain.History) (domain.History, bool) {
		if len(h) >= p.Limit {
			return h, false
		}
		return append(h, now.UnixMilli()), true
	})
	s.mu.Unlock()

	s.record(ctx, domain.StatsEvent{Category: c, Allowed: allowed, At: now})
	return allowed
}

// Reset esvazia o histórico da categoria. Idempotente.
func (s *Service) Reset(ctx context.Context, c domain.Category) {
	p, ok := s.policies.Lookup(c)
	if !ok {
		s.policyMiss(c)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutate(ctx, c, s.clock(), p, func(domain.History) (domain.History, bool) {
		return domain.History{}, true
	})
	s.logger.InfoContext(ctx, "action limit reset", slog.String("category", string(c)))
}

// Snapshot inspeciona todas as categorias configuradas.
func (s *Service) Snapshot(ctx context.Context) []domain.State {
	cats := s.policies.Categories()
	out := make([]domain.State, 0, len(cats))
	for _, c := range cats {
		out = append(out, s.Inspect(ctx, c))
	}
	return out
}

// Active lista as categorias já tocadas neste processo.
func (s *Service) Active() []domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Category, 0, len(s.cache))
	for c := range s.cache {
		out = append(out, c)
	}
	return out
}

// mutate aplica fn sobre o histórico podado e persiste o resultado.
// Deve ser chamado com mu travado.
func (s *Service) mutate(
	ctx context.Context,
	c domain.Category,
	now time.Time,
	p domain.Policy,
	fn func(pruned domain.History) (domain.History, bool),
) (domain.History, bool) {
	key := domain.Key(s.prefix, c)

	if as, ok := s.store.(domain.AtomicHistoryStore); ok && !s.isDirty(c) {
		var (
			changed  bool
			lastNext domain.History
			decided  bool
		)
		written, err := as.Update(ctx, key, func(current domain.History) (domain.History, error) {
			next, ok := fn(current.Prune(now, p.Window))
			changed, lastNext, decided = ok, next, true
			return next, nil
		})
		if err == nil {
			s.cache[c] = &cacheEntry{history: written}
			return written, changed
		}
		s.warnStorage(ctx, "update", c, err)

		// Com disputa, gravar sem CAS perderia a escrita concorrente: vale a
		// última decisão vista, mantida só no cache.
		if decided && errors.Is(err, domain.ErrConflict) {
			s.cache[c] = &cacheEntry{history: lastNext, dirty: true}
			return lastNext.Clone(), changed
		}
	}

	next, changed := fn(s.load(ctx, c).Prune(now, p.Window))
	s.save(ctx, c, next)
	return next, changed
}

// load devolve o histórico atual. Sem store, ou com cache sujo, o cache manda.
// Deve ser chamado com mu travado.
func (s *Service) load(ctx context.Context, c domain.Category) domain.History {
	ent, cached := s.cache[c]
	if cached && (ent.dirty || s.store == nil) {
		return ent.history.Clone()
	}
	if s.store == nil {
		return domain.History{}
	}

	h, err := s.store.Load(ctx, domain.Key(s.prefix, c))
	if err != nil {
		s.warnStorage(ctx, "load", c, err)
		if cached {
			return ent.history.Clone()
		}
		return domain.History{}
	}
	return h
}

// save grava h e atualiza o cache. Falha de escrita mantém o efeito em memória.
func (s *Service) save(ctx context.Context, c domain.Category, h domain.History) {
	ent := &cacheEntry{history: h}
	s.cache[c] = ent
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, domain.Key(s.prefix, c), h); err != nil {
		ent.dirty = true
		s.warnStorage(ctx, "save", c, err)
	}
}

func (s *Service) remember(c domain.Category, h domain.History) {
	if ent, ok := s.cache[c]; ok && ent.dirty {
		ent.history = h
		return
	}
	s.cache[c] = &cacheEntry{history: h}
}

func (s *Service) isDirty(c domain.Category) bool {
	ent, ok := s.cache[c]
	return ok && ent.dirty
}

// policyMiss avisa em Warn na primeira vez por categoria e em Debug depois.
func (s *Service) policyMiss(c domain.Category) {
	level := slog.LevelDebug
	if _, seen := s.missWarned.LoadOrStore(c, struct{}{}); !seen {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "no rate limit policy for category, allowing",
		slog.String("category", string(c)))
}

// warnStorage registra toda falha de storage. Deve ser chamado com mu travado.
func (s *Service) warnStorage(ctx context.Context, op string, c domain.Category, err error) {
	s.storageFailures++
	level := slog.LevelDebug
	s.storageWarn.Do(func() { level = slog.LevelWarn })
	s.logger.Log(ctx, level, "action history storage failed",
		slog.String("op", op),
		slog.String("category", string(c)),
		slog.Int("failures", s.storageFailures),
		slog.Any("error", err))
}

func (s *Service) record(ctx context.Context, ev domain.StatsEvent) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Record(ctx, ev); err != nil {
		s.logger.DebugContext(ctx, "stats record failed", slog.Any("error", err))
	}
}
