package models

// StandingsRow is derived from the completed matches of one instance and never persisted.
type StandingsRow struct {
	Participant   *Participant `json:"participant"`
	GamesWon      int          `json:"games_won"`
	GamesLost     int          `json:"games_lost"`
	WinPercentage float64      `json:"win_percentage"`
	MatchWins     int          `json:"match_wins"`
	MatchLosses   int          `json:"match_losses"`
}

func (r *StandingsRow) GamesPlayed() int {
	return r.GamesWon + r.GamesLost
}
