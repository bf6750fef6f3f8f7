package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrSnapshotMissing = errors.New("snapshot: symbol missing")
	ErrSnapshotDiffers = errors.New("snapshot: values differ")
)
