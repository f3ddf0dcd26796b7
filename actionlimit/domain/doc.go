// Package domain define contratos e tipos de domínio do limitador de ações.
//
// Este pacote não depende de net/http nem de implementações concretas de
// armazenamento. Histórico, política e estado derivado ficam aqui para que as
// regras possam ser testadas sem relógio real e sem disco.
package domain
