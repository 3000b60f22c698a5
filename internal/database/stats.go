package database

import "time"

// PoolStats is a driver-neutral snapshot of pool usage. Each connector
// fills in what its pooling library tracks and leaves the rest zero.
type PoolStats struct {
	MaxConns   int32 `json:"max_conns"`
	TotalConns int32 `json:"total_conns"`
	IdleConns  int32 `json:"idle_conns"`
	InUseConns int32 `json:"in_use_conns"`

	AcquireCount         int64         `json:"acquire_count"`
	WaitCount            int64         `json:"wait_count"` // acquires that found no idle connection
	CanceledAcquireCount int64         `json:"canceled_acquire_count"`
	WaitDuration         time.Duration `json:"wait_duration_ns"`

	IdleClosed     int64 `json:"idle_closed"`
	LifetimeClosed int64 `json:"lifetime_closed"`
}
