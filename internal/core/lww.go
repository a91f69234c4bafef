package core

// Resolution is the outcome of comparing two copies of the same record id.
type Resolution int

const (
	// KeepLocal: the copies agree, or the local copy is newer.
	KeepLocal Resolution = iota
	// TakeRemote: same device, remote copy is newer.
	TakeRemote
	// Diverged: copies were last written by different devices.
	Diverged
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep_local"
	case TakeRemote:
		return "take_remote"
	case Diverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// Resolve decides how a device merges a remote copy into its local copy.
// Identical timestamps are a no-op regardless of device.
func Resolve(local, remote ExpenseRecord) Resolution {
	if local.UpdatedAt.Equal(remote.UpdatedAt) {
		return KeepLocal
	}
	if local.DeviceID != remote.DeviceID {
		return Diverged
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return TakeRemote
	}
	return KeepLocal
}

// Supersedes reports whether an incoming write should replace the stored
// copy on the remote ledger (strictly newer updatedAt wins).
func Supersedes(stored, incoming ExpenseRecord) bool {
	return incoming.UpdatedAt.After(stored.UpdatedAt)
}
