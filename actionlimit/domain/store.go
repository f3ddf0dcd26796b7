package domain

import (
	"context"
	"errors"
)

var (
	// ErrPolicyMiss sinaliza categoria sem política configurada.
	ErrPolicyMiss = errors.New("actionlimit: no policy for category")
	// ErrHistoryRead sinaliza falha ao ler o histórico persistido.
	ErrHistoryRead = errors.New("actionlimit: history read failed")
	// ErrHistoryWrite sinaliza falha ao gravar o histórico.
	ErrHistoryWrite = errors.New("actionlimit: history write failed")
	// ErrCorruptHistory sinaliza valor persistido que não é uma lista de inteiros.
	ErrCorruptHistory = errors.New("actionlimit: corrupt history")
	// ErrConflict sinaliza que o compare-and-swap desistiu por disputa com
	// outro escritor.
	ErrConflict = errors.New("actionlimit: concurrent update conflict")
)

// DefaultKeyPrefix é o prefixo das chaves de persistência (prefixo + categoria).
const DefaultKeyPrefix = "rateLimit_"

// Key monta a chave de persistência de uma categoria.
func Key(prefix string, c Category) string {
	return prefix + string(c)
}

// HistoryStore é a estratégia de persistência do histórico.
//
// Cada Save substitui o array inteiro da chave (não é um log append-only).
// Load de chave inexistente devolve histórico vazio e erro nil.
type HistoryStore interface {
	Load(ctx context.Context, key string) (History, error)
	Save(ctx context.Context, key string, h History) error
}

// UpdateFunc recebe o histórico atual e devolve o que deve ser gravado.
type UpdateFunc func(current History) (History, error)

// AtomicHistoryStore é implementado por stores capazes de fazer
// ler-modificar-gravar como compare-and-swap (vários processos no mesmo device).
//
// Update devolve o histórico efetivamente gravado.
type AtomicHistoryStore interface {
	HistoryStore
	Update(ctx context.Context, key string, fn UpdateFunc) (History, error)
}
