package postmaster

// Mode is the operating mode derived from a resolved Config.
type Mode int

const (
	// ModeDisabled means no scheduler runs.
	ModeDisabled Mode = iota
	// ModeMemoryOnly keeps every record in memory. The window is unbounded.
	ModeMemoryOnly
	// ModePersistentLocal spills overflow to a SQLite file on this node.
	ModePersistentLocal
	// ModePersistentRemote spills overflow to a Redis or PostgreSQL server.
	ModePersistentRemote
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeMemoryOnly:
		return "memory_only"
	case ModePersistentLocal:
		return "persistent_local"
	case ModePersistentRemote:
		return "persistent_remote"
	default:
		return "unknown"
	}
}

// Persistent reports whether the mode uses a durable store.
func (m Mode) Persistent() bool {
	return m == ModePersistentLocal || m == ModePersistentRemote
}

// Mode returns the operating mode of c.
func (c Config) Mode() Mode {
	switch {
	case !c.Enabled:
		return ModeDisabled
	case c.Persistence == nil || !c.Persistence.Enabled:
		return ModeMemoryOnly
	case c.Persistence.Redis.Enabled && !c.Persistence.Redis.Embedded:
		return ModePersistentRemote
	case c.Persistence.SQL.Driver == "postgres":
		return ModePersistentRemote
	default:
		return ModePersistentLocal
	}
}
