package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/pkg/database"
)

type BattleRepository struct {
	db *database.DB
}

func NewBattleRepository(db *database.DB) *BattleRepository {
	return &BattleRepository{db: db}
}

// Save 배틀 기록 저장. 같은 roomId가 이미 있으면 아무것도 하지 않는다 (보관 작업 재시도 대비)
func (r *BattleRepository) Save(ctx context.Context, record *models.BattleRecord) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO battle_history (
				room_id, question, question_compressed, topic, average_rating,
				battle_started, battle_ended, battle_duration
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (room_id) DO NOTHING
			RETURNING id, created_at
		`

		err := tx.QueryRowContext(ctx, query,
			record.RoomID,
			record.Question,
			record.QuestionCompressed,
			record.Topic,
			record.AverageRating,
			record.BattleStarted,
			record.BattleEnded,
			record.DurationSeconds,
		).Scan(&record.ID, &record.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert battle: %w", err)
		}

		for i, u := range record.Users {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO battle_participants (
					battle_id, position, username, code, code_compressed,
					final_rating, rating_change, analysis
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, record.ID, i, u.Username, u.Code, u.CodeCompressed, u.FinalRating, u.RatingChange, u.Analysis)
			if err != nil {
				return fmt.Errorf("failed to insert participant %s: %w", u.Username, err)
			}
		}
		return nil
	})
}

// FindByUsername 사용자가 참가한 배틀 (최신순)
func (r *BattleRepository) FindByUsername(ctx context.Context, username string, limit, offset int) ([]*models.BattleRecord, error) {
	query := `
		SELECT b.id, b.room_id, b.question, b.question_compressed, b.topic, b.average_rating,
		       b.battle_started, b.battle_ended, b.battle_duration, b.created_at
		FROM battle_history b
		WHERE EXISTS (
			SELECT 1 FROM battle_participants p
			WHERE p.battle_id = b.id AND p.username = $1
		)
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query battles: %w", err)
	}
	defer rows.Close()

	var records []*models.BattleRecord
	byID := make(map[string]*models.BattleRecord)
	for rows.Next() {
		record := &models.BattleRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.RoomID,
			&record.Question,
			&record.QuestionCompressed,
			&record.Topic,
			&record.AverageRating,
			&record.BattleStarted,
			&record.BattleEnded,
			&record.DurationSeconds,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		records = append(records, record)
		byID[record.ID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate battles: %w", err)
	}

	if err := r.loadParticipants(ctx, byID, func(record *models.BattleRecord, u models.BattleUser) {
		record.Users = append(record.Users, u)
	}); err != nil {
		return nil, err
	}

	return records, nil
}

// CountByUsername 사용자가 참가한 배틀 수
func (r *BattleRepository) CountByUsername(ctx context.Context, username string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT battle_id) FROM battle_participants WHERE username = $1`, username,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count battles: %w", err)
	}
	return total, nil
}

// FindRecent 최근 배틀 요약 (문제/코드 제외)
func (r *BattleRepository) FindRecent(ctx context.Context, limit int) ([]*models.BattleSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, battle_duration, created_at
		FROM battle_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent battles: %w", err)
	}
	defer rows.Close()

	var summaries []*models.BattleSummary
	records := make(map[string]*models.BattleRecord)
	index := make(map[string]*models.BattleSummary)
	for rows.Next() {
		var id string
		summary := &models.BattleSummary{}
		if err := rows.Scan(&id, &summary.RoomID, &summary.DurationSeconds, &summary.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		summaries = append(summaries, summary)
		records[id] = &models.BattleRecord{ID: id}
		index[id] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate battles: %w", err)
	}

	if err := r.loadParticipants(ctx, records, func(record *models.BattleRecord, u models.BattleUser) {
		s := index[record.ID]
		s.Users = append(s.Users, models.BattleSummaryUser{
			Username:     u.Username,
			FinalRating:  u.FinalRating,
			RatingChange: u.RatingChange,
		})
	}); err != nil {
		return nil, err
	}

	return summaries, nil
}

// ResultsByUsername 사용자 관점의 배틀 결과 (오래된 순)
func (r *BattleRepository) ResultsByUsername(ctx context.Context, username string) ([]models.BattleResultEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.rating_change, p.final_rating, b.created_at
		FROM battle_participants p
		JOIN battle_history b ON b.id = p.battle_id
		WHERE p.username = $1
		ORDER BY b.created_at ASC
	`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var entries []models.BattleResultEntry
	for rows.Next() {
		var e models.BattleResultEntry
		if err := rows.Scan(&e.RatingChange, &e.FinalRating, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *BattleRepository) loadParticipants(
	ctx context.Context,
	records map[string]*models.BattleRecord,
	add func(*models.BattleRecord, models.BattleUser),
) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT battle_id, username, code, code_compressed, final_rating, rating_change, analysis
		FROM battle_participants
		WHERE battle_id = ANY($1::uuid[])
		ORDER BY battle_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var battleID string
		var u models.BattleUser
		if err := rows.Scan(&battleID, &u.Username, &u.Code, &u.CodeCompressed, &u.FinalRating, &u.RatingChange, &u.Analysis); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		if record, ok := records[battleID]; ok {
			add(record, u)
		}
	}
	return rows.Err()
}
