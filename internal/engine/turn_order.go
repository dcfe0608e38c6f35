package engine

// SnakeOrder covers picks 3..9 of a ten player draft; the captains hold picks 1 and 2
// and the last remaining player is auto-assigned.
var SnakeOrder = []Team{
	TeamA,
	TeamB,
	TeamB,
	TeamA,
	TeamA,
	TeamB,
	TeamA,
}
