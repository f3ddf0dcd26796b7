package domain

import "time"

// History guarda os instantes (Unix em milissegundos) das ações registradas,
// em ordem de inserção.
type History []int64

// Prune mantém apenas os ts com now-ts < window, preservando a ordem.
//
// Idades negativas (relógio voltou no tempo) continuam valendo: a entrada
// não expira até o relógio alcançá-la.
func (h History) Prune(now time.Time, window time.Duration) History {
	nowMs := now.UnixMilli()
	winMs := window.Milliseconds()

	out := make(History, 0, len(h))
	for _, ts := range h {
		if nowMs-ts < winMs {
			out = append(out, ts)
		}
	}
	return out
}

// Oldest devolve o menor timestamp. A ordem de inserção não garante que o
// primeiro seja o menor, então percorre tudo.
func (h History) Oldest() (int64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	oldest := h[0]
	for _, ts := range h[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	return oldest, true
}

// Clone copia o histórico para que o chamador possa mutar sem aliasing.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Clock é a fonte de tempo injetável. Em produção é time.Now.
type Clock func() time.Time
