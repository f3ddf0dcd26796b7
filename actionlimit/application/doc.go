// Package application contém os casos de uso do limitador de ações:
// inspecionar, registrar e zerar o histórico de uma categoria.
//
// Ele depende apenas do pacote domain e não conhece net/http nem o storage
// concreto. Ex.: Service.RecordAction(ctx, "likeActions") devolve true/false.
package application
