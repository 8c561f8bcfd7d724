package ml

// hashUserID is a 32-bit FNV-1a hash. The exact algorithm is load-bearing:
// changing it reassigns every user's rollout bucket.
func hashUserID(value string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(value); i++ {
		hash ^= uint32(value[i])
		hash *= 16777619
	}
	return hash
}

// RolloutFlags controls participation in one model rollout: a global enable
// plus a 0-100 percentage bucketed deterministically by user id.
type RolloutFlags struct {
	Enabled bool
	Percent int
}

// clampPercent keeps a configured rollout percentage inside 0-100.
func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// EnabledForUser resolves whether the given user participates. An explicit
// override wins over everything; otherwise the global flag gates, then the
// user id hashes into a stable 0-99 bucket compared against the percentage.
// An empty user id is never rolled in below 100 percent.
func (f RolloutFlags) EnabledForUser(userID string, override *bool) bool {
	if override != nil {
		return *override
	}
	if !f.Enabled {
		return false
	}
	pct := clampPercent(f.Percent)
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if userID == "" {
		return false
	}
	return int(hashUserID(userID)%100) < pct
}
