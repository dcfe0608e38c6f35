package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type playerRow struct {
	ID            int64  `gorm:"primaryKey"`
	ParticipantID string `gorm:"uniqueIndex;not null"`
	Username      string `gorm:"not null;default:''"`
	Points        int    `gorm:"not null;default:0"`
	MatchesPlayed int    `gorm:"not null;default:0"`
	Wins          int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

func (playerRow) TableName() string { return "players" }

type matchRow struct {
	ID         int64  `gorm:"primaryKey"`
	CycleKey   string `gorm:"uniqueIndex;not null"`
	QueueID    int    `gorm:"not null"`
	CaptainAID string `gorm:"column:captain_a_id;not null"`
	CaptainBID string `gorm:"column:captain_b_id;not null"`
	MapName    string `gorm:"not null"`
	WinnerTeam *int16
	CreatedAt  time.Time
}

func (matchRow) TableName() string { return "matches" }

type matchPlayerRow struct {
	ID            int64 `gorm:"primaryKey"`
	MatchID       int64 `gorm:"not null"`
	ParticipantID string
	Team          int16
	Position      int16
}

func (matchPlayerRow) TableName() string { return "match_players" }

type playerMatchRow struct {
	Match      matchRow `gorm:"embedded"`
	MemberTeam int16
}

// Store is the gorm/postgres implementation of store.Store. The schema is
// owned by the migrations package.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// "23505" is the PostgreSQL error code for unique_violation
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func upsertPlayer(tx *gorm.DB, d store.PlayerDelta) error {
	row := playerRow{
		ParticipantID: d.Player.ID,
		Username:      d.Player.Name,
		Points:        d.Points,
		MatchesPlayed: d.Matches,
		Wins:          d.Wins,
	}
	set := map[string]any{
		"points":         gorm.Expr("players.points + ?", d.Points),
		"matches_played": gorm.Expr("players.matches_played + ?", d.Matches),
		"wins":           gorm.Expr("players.wins + ?", d.Wins),
	}
	if d.Player.Name != "" {
		set["username"] = gorm.Expr("EXCLUDED.username")
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.Assignments(set),
	}).Create(&row).Error
}

func (s *Store) CreateMatch(ctx context.Context, m store.NewMatch) (int64, error) {
	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := matchRow{
			CycleKey:   m.CycleKey,
			QueueID:    m.QueueID,
			CaptainAID: m.CaptainA.ID,
			CaptainBID: m.CaptainB.ID,
			MapName:    m.Map,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cycle_key"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing matchRow
			if err := tx.Where("cycle_key = ?", m.CycleKey).Take(&existing).Error; err != nil {
				return err
			}
			id = existing.ID
			s.log.Debug("match already recorded for cycle", zap.String("cycle", m.CycleKey), zap.Int64("match", id))
			return nil
		}
		id = row.ID

		members := make([]matchPlayerRow, 0, len(m.TeamA)+len(m.TeamB))
		add := func(team engine.Team, ps []engine.Participant) error {
			for i, p := range ps {
				if err := upsertPlayer(tx, store.PlayerDelta{Player: p}); err != nil {
					return err
				}
				members = append(members, matchPlayerRow{MatchID: id, ParticipantID: p.ID, Team: int16(team), Position: int16(i)})
			}
			return nil
		}
		if err := add(engine.TeamA, m.TeamA); err != nil {
			return err
		}
		if err := add(engine.TeamB, m.TeamB); err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (s *Store) ReportWinner(ctx context.Context, r store.WinnerReport) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row matchRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&row, r.MatchID).Error; err != nil {
			return err
		}
		if row.WinnerTeam != nil {
			if engine.Team(*row.WinnerTeam) == r.Winner {
				return nil
			}
			return store.ErrConflict
		}
		if err := tx.Model(&row).Update("winner_team", int16(r.Winner)).Error; err != nil {
			return err
		}
		for _, d := range r.Deltas {
			if err := upsertPlayer(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err)
}

func (s *Store) UpsertPlayerPoints(ctx context.Context, d store.PlayerDelta) error {
	return mapErr(upsertPlayer(s.db.WithContext(ctx), d))
}

func toPlayer(r playerRow) store.PlayerRecord {
	return store.PlayerRecord{
		ID:            r.ParticipantID,
		Name:          r.Username,
		Points:        r.Points,
		MatchesPlayed: r.MatchesPlayed,
		Wins:          r.Wins,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Store) GetPlayer(ctx context.Context, id string) (store.PlayerRecord, error) {
	var row playerRow
	if err := s.db.WithContext(ctx).Where("participant_id = ?", id).Take(&row).Error; err != nil {
		return store.PlayerRecord{}, mapErr(err)
	}
	return toPlayer(row), nil
}

func (s *Store) PlayerPoints(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = 0
	}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []playerRow
	if err := s.db.WithContext(ctx).Where("participant_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	for _, r := range rows {
		out[r.ParticipantID] = r.Points
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]store.PlayerRecord, error) {
	var rows []playerRow
	err := s.db.WithContext(ctx).
		Order("points DESC").
		Order("id ASC").
		Limit(limitOrAll(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]store.PlayerRecord, len(rows))
	for i, r := range rows {
		out[i] = toPlayer(r)
	}
	return out, nil
}

// names resolves display names for participant ids.
func (s *Store) names(tx *gorm.DB, ids []string) (map[string]string, error) {
	var rows []playerRow
	if err := tx.Select("participant_id", "username").Where("participant_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ParticipantID] = r.Username
	}
	return out, nil
}

func toMatch(r matchRow, names map[string]string) store.MatchRecord {
	m := store.MatchRecord{
		ID:        r.ID,
		QueueID:   r.QueueID,
		CaptainA:  engine.Participant{ID: r.CaptainAID, Name: names[r.CaptainAID]},
		CaptainB:  engine.Participant{ID: r.CaptainBID, Name: names[r.CaptainBID]},
		Map:       r.MapName,
		CreatedAt: r.CreatedAt,
	}
	if r.WinnerTeam != nil {
		m.Winner = engine.Team(*r.WinnerTeam)
	}
	return m
}

func captainIDs(rows []matchRow) []string {
	ids := make([]string, 0, 2*len(rows))
	for _, r := range rows {
		ids = append(ids, r.CaptainAID, r.CaptainBID)
	}
	return ids
}

func (s *Store) MatchesByQueue(ctx context.Context, queueID, limit int) ([]store.MatchRecord, error) {
	db := s.db.WithContext(ctx)
	var rows []matchRow
	err := db.Where("queue_id = ?", queueID).
		Order("id DESC").
		Limit(limitOrAll(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	names, err := s.names(db, captainIDs(rows))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]store.MatchRecord, len(rows))
	for i, r := range rows {
		out[i] = toMatch(r, names)
	}
	return out, nil
}

func (s *Store) MatchDetails(ctx context.Context, matchID int64) (store.MatchDetails, error) {
	db := s.db.WithContext(ctx)
	var row matchRow
	if err := db.Take(&row, matchID).Error; err != nil {
		return store.MatchDetails{}, mapErr(err)
	}
	var members []matchPlayerRow
	if err := db.Where("match_id = ?", matchID).Order("team ASC").Order("position ASC").Find(&members).Error; err != nil {
		return store.MatchDetails{}, mapErr(err)
	}
	ids := captainIDs([]matchRow{row})
	for _, m := range members {
		ids = append(ids, m.ParticipantID)
	}
	names, err := s.names(db, ids)
	if err != nil {
		return store.MatchDetails{}, mapErr(err)
	}

	d := store.MatchDetails{MatchRecord: toMatch(row, names)}
	for _, m := range members {
		p := engine.Participant{ID: m.ParticipantID, Name: names[m.ParticipantID]}
		if engine.Team(m.Team) == engine.TeamA {
			d.TeamA = append(d.TeamA, p)
		} else {
			d.TeamB = append(d.TeamB, p)
		}
	}
	return d, nil
}

func (s *Store) PlayerMatches(ctx context.Context, playerID string, limit int) ([]store.PlayerMatch, error) {
	db := s.db.WithContext(ctx)
	var rows []playerMatchRow
	err := db.Table("matches").
		Select("matches.*, match_players.team AS member_team").
		Joins("JOIN match_players ON match_players.match_id = matches.id").
		Where("match_players.participant_id = ?", playerID).
		Order("matches.id DESC").
		Limit(limitOrAll(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	plain := make([]matchRow, len(rows))
	for i, r := range rows {
		plain[i] = r.Match
	}
	names, err := s.names(db, captainIDs(plain))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]store.PlayerMatch, len(rows))
	for i, r := range rows {
		out[i] = store.PlayerMatch{MatchRecord: toMatch(r.Match, names), Team: engine.Team(r.MemberTeam)}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
