package exception

import "github.com/yanun0323/errors"

// UDS errors
var (
	ErrEmptyPathUDS = errors.New("uds: empty path")
	ErrNilClientUDS = errors.New("uds: nil client")
)
