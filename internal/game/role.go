package game

// Role identifies the ability set bound to a seat at game start.
type Role string

const (
	RoleVillager      Role = "villager"
	RoleWerewolf      Role = "werewolf"
	RoleSeer          Role = "seer"
	RoleWitch         Role = "witch"
	RoleHunter        Role = "hunter"
	RoleGuard         Role = "guard"
	RoleIdiot         Role = "idiot"
	RoleWolfKing      Role = "wolf_king"
	RoleWhiteWolfKing Role = "white_wolf_king"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleVillager, RoleWerewolf, RoleSeer, RoleWitch, RoleHunter,
		RoleGuard, RoleIdiot, RoleWolfKing, RoleWhiteWolfKing:
		return true
	}
	return false
}

// Werewolf reports whether the role is werewolf-aligned.
func (r Role) Werewolf() bool {
	switch r {
	case RoleWerewolf, RoleWolfKing, RoleWhiteWolfKing:
		return true
	}
	return false
}

// God reports whether the role is a village power role. Plain villagers and
// all werewolf-aligned roles are not gods.
func (r Role) God() bool {
	switch r {
	case RoleSeer, RoleWitch, RoleHunter, RoleGuard, RoleIdiot:
		return true
	}
	return false
}

// Faction is the win-evaluation grouping of roles.
type Faction string

const (
	FactionVillage  Faction = "village"
	FactionWerewolf Faction = "werewolf"
)

// Faction returns the faction the role counts for in win evaluation.
func (r Role) Faction() Faction {
	if r.Werewolf() {
		return FactionWerewolf
	}
	return FactionVillage
}

// DeathShot reports whether the role fires a revenge shot when it dies.
// The white wolf king only acts through its self-destruct, never a shot.
func (r Role) DeathShot() bool {
	return r == RoleHunter || r == RoleWolfKing
}
