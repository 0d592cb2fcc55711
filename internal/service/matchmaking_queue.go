package service

import "time"

// WaitingEntry 매칭 대기 중인 사용자
type WaitingEntry struct {
	ConnectionID string
	Username     string
	Topic        string
	Rating       int
	QueuedAt     time.Time
}

// MatchmakingQueue 대기열 (토픽 일치 + 레이팅 허용 범위 매칭)
//
// RoomCoordinator 이벤트 루프 전용이며 동시 사용에 안전하지 않다.
type MatchmakingQueue struct {
	entries   []WaitingEntry
	tolerance int
}

// NewMatchmakingQueue 대기열 생성
func NewMatchmakingQueue(tolerance int) *MatchmakingQueue {
	if tolerance < 0 {
		tolerance = 0
	}
	return &MatchmakingQueue{tolerance: tolerance}
}

// Tolerance 매칭 허용 레이팅 차이
func (q *MatchmakingQueue) Tolerance() int {
	return q.tolerance
}

// Enqueue 대기열 끝에 추가. 같은 username의 기존 항목은 교체된다.
func (q *MatchmakingQueue) Enqueue(entry WaitingEntry) (replaced bool) {
	replaced = q.Remove(entry.Username)
	q.entries = append(q.entries, entry)
	return replaced
}

// FindMatch 삽입 순서대로 첫 번째로 조건을 만족하는 상대 반환
func (q *MatchmakingQueue) FindMatch(candidate WaitingEntry) (WaitingEntry, bool) {
	for _, other := range q.entries {
		if other.Topic != candidate.Topic || other.Username == candidate.Username {
			continue
		}
		if abs(other.Rating-candidate.Rating) <= q.tolerance {
			return other, true
		}
	}
	return WaitingEntry{}, false
}

// Remove username 항목 제거
func (q *MatchmakingQueue) Remove(username string) bool {
	for i, e := range q.entries {
		if e.Username == username {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveByConnection 연결 ID에 속한 모든 항목 제거
func (q *MatchmakingQueue) RemoveByConnection(connectionID string) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.ConnectionID == connectionID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

// Len 대기 인원
func (q *MatchmakingQueue) Len() int {
	return len(q.entries)
}

// Snapshot 대기열 복사본
func (q *MatchmakingQueue) Snapshot() []WaitingEntry {
	out := make([]WaitingEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
