package domain

// Camada de domínio do limitador por categoria de ação.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"sort"
	"time"
)

// Category identifica um tipo de ação do usuário (ex: "likeActions").
type Category string

const (
	MovieUpload    Category = "movieUpload"
	PostCreation   Category = "postCreation"
	Messages       Category = "messages"
	SearchRequests Category = "searchRequests"
	ProfileUpdates Category = "profileUpdates"
	LikeActions    Category = "likeActions"
	CommentActions Category = "commentActions"
	FollowActions  Category = "followActions"
)

// Policy é a regra estática de uma categoria: no máximo Limit ações dentro de Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Valid reporta se a política tem limite e janela positivos.
func (p Policy) Valid() bool {
	return p.Limit > 0 && p.Window > 0
}

// PolicyTable mapeia categoria -> política.
type PolicyTable map[Category]Policy

// DefaultPolicies retorna uma cópia nova da tabela padrão.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		MovieUpload:    {Limit: 10, Window: 24 * time.Hour},
		PostCreation:   {Limit: 50, Window: 24 * time.Hour},
		Messages:       {Limit: 100, Window: 24 * time.Hour},
		SearchRequests: {Limit: 100, Window: time.Hour},
		ProfileUpdates: {Limit: 5, Window: time.Hour},
		LikeActions:    {Limit: 30, Window: time.Minute},
		CommentActions: {Limit: 20, Window: time.Minute},
		FollowActions:  {Limit: 20, Window: time.Minute},
	}
}

// Lookup devolve a política da categoria. ok=false é um "policy miss":
// não é erro, quem chama deve tratar como capacidade ilimitada.
func (t PolicyTable) Lookup(c Category) (Policy, bool) {
	p, ok := t[c]
	if !ok || !p.Valid() {
		return Policy{}, false
	}
	return p, true
}

// Categories lista as categorias configuradas em ordem alfabética.
func (t PolicyTable) Categories() []Category {
	out := make([]Category, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge retorna uma nova tabela com as entradas de override por cima de t.
func (t PolicyTable) Merge(override PolicyTable) PolicyTable {
	out := make(PolicyTable, len(t)+len(override))
	for c, p := range t {
		out[c] = p
	}
	for c, p := range override {
		out[c] = p
	}
	return out
}

// State é o estado derivado (nunca persistido) de uma categoria num instante.
type State struct {
	Category Category
	// Unlimited indica policy miss: não existe política para a categoria.
	Unlimited  bool
	Limit      int
	Window     time.Duration
	Used       int
	Remaining  int
	CanPerform bool
	// ResetTime só é válido quando HasReset for true.
	ResetTime time.Time
	HasReset  bool
}

// UnlimitedState é o estado devolvido quando a categoria não tem política.
func UnlimitedState(c Category) State {
	return State{
		Category:   c,
		Unlimited:  true,
		Remaining:  math.MaxInt,
		CanPerform: true,
	}
}

// Derive calcula o estado a partir de um histórico já podado.
func Derive(c Category, p Policy, pruned History) State {
	st := State{
		Category: c,
		Limit:    p.Limit,
		Window:   p.Window,
		Used:     len(pruned),
	}
	st.Remaining = max(0, p.Limit-len(pruned))
	st.CanPerform = st.Remaining > 0
	if oldest, ok := pruned.Oldest(); ok {
		st.ResetTime = time.UnixMilli(oldest).Add(p.Window)
		st.HasReset = true
	}
	return st
}

// RetryAfter é quanto falta até o reset, arredondado para cima em segundos
// e nunca negativo.
func (s State) RetryAfter(now time.Time) time.Duration {
	if !s.HasReset || !s.ResetTime.After(now) {
		return 0
	}
	return (s.ResetTime.Sub(now) + time.Second - 1).Truncate(time.Second)
}
