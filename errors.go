package heartsync

import "heartsync/common"

// Re-exported sentinel errors so callers don't need to import common directly.
var (
	ErrNotFound        = common.ErrNotFound
	ErrDisabled        = common.ErrDisabled
	ErrStoreNotSet     = common.ErrStoreNotSet
	ErrFeedNotSet      = common.ErrFeedNotSet
	ErrNilContext      = common.ErrNilContext
	ErrUnsubscribed    = common.ErrUnsubscribed
	ErrInvalidPageSize = common.ErrInvalidPageSize
	ErrFreshnessWindow = common.ErrFreshnessWindow
)
