package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/common"
)

var (
	ErrUnavailable  = fmt.Errorf("server unavailable: %w", common.ErrNetwork)
	ErrUnauthorized = errors.New("unauthorized")
)
