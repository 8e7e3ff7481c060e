package conquest

// Reconciler chooses between two copies of the same session.
type Reconciler interface {
	Reconcile(local, remote Snapshot) Snapshot
}

// VersionReconciler implements the version-wins policy.
type VersionReconciler struct{}

func (VersionReconciler) Reconcile(local, remote Snapshot) Snapshot {
	return Reconcile(local, remote)
}

// Reconcile returns whichever snapshot is authoritative, unchanged: the higher
// version wins, and on equal versions the later timestamp wins. A full tie
// keeps local. Snapshots are never merged field by field.
func Reconcile(local, remote Snapshot) Snapshot {
	if RemoteWins(local, remote) {
		return remote
	}
	return local
}

// RemoteWins reports whether Reconcile would pick remote.
func RemoteWins(local, remote Snapshot) bool {
	if remote.Version != local.Version {
		return remote.Version > local.Version
	}
	return remote.Timestamp.After(local.Timestamp)
}
