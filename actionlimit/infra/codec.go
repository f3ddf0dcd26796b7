package infra

import (
	"fmt"

	"action-limiter/actionlimit/domain"

	"github.com/bytedance/sonic"
)

// Formato persistido: array JSON de inteiros (Unix ms), ex: [1741608000000,1741608001000].

func encodeHistory(h domain.History) (string, error) {
	if h == nil {
		h = domain.History{}
	}
	b, err := sonic.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHistory(raw string) (domain.History, error) {
	if raw == "" {
		return domain.History{}, nil
	}
	var h domain.History
	if err := sonic.UnmarshalString(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptHistory, err)
	}
	if h == nil {
		h = domain.History{}
	}
	return h, nil
}
