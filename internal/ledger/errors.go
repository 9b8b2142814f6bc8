package ledger

import "errors"

// ErrNoOpenPosition — продажа без открытого лонга по паре.
var ErrNoOpenPosition = errors.New("no open position for pair")

var errWriteFailed = errors.New("store write failed")
