package service

// RatingPolicy 평가 증가분 적용 규칙
type RatingPolicy struct {
	MinIncrement int
	MaxIncrement int
	// Floor/Ceiling이 0이면 해당 방향 제한 없음
	Floor   int
	Ceiling int
}

// DefaultRatingPolicy 기본 정책: 증가분 0~30, 최대 3000
func DefaultRatingPolicy() RatingPolicy {
	return RatingPolicy{
		MinIncrement: 0,
		MaxIncrement: 30,
		Ceiling:      3000,
	}
}

// ClampIncrement 증가분을 [MinIncrement, MaxIncrement]로 제한
func (p RatingPolicy) ClampIncrement(increment int) int {
	if increment < p.MinIncrement {
		return p.MinIncrement
	}
	if p.MaxIncrement >= p.MinIncrement && increment > p.MaxIncrement {
		return p.MaxIncrement
	}
	return increment
}

// Apply 증가분을 제한해 적용하고 새 레이팅과 실제 변화량 반환
func (p RatingPolicy) Apply(rating, increment int) (newRating, change int) {
	newRating = rating + p.ClampIncrement(increment)

	if p.Ceiling > 0 && newRating > p.Ceiling {
		newRating = p.Ceiling
	}
	if p.Floor > 0 && newRating < p.Floor {
		newRating = p.Floor
	}

	// 이미 상한을 넘은 레이팅은 깎지 않는다
	if newRating < rating && p.ClampIncrement(increment) >= 0 {
		newRating = rating
	}

	return newRating, newRating - rating
}
