package service

import (
	"testing"
)

func TestRatingPolicy_Apply(t *testing.T) {
	tests := []struct {
		name       string
		policy     RatingPolicy
		rating     int
		increment  int
		wantRating int
		wantChange int
	}{
		{
			name:       "Increment within range",
			policy:     DefaultRatingPolicy(),
			rating:     1000,
			increment:  20,
			wantRating: 1020,
			wantChange: 20,
		},
		{
			name:       "Increment above max is clamped",
			policy:     DefaultRatingPolicy(),
			rating:     1000,
			increment:  45,
			wantRating: 1030,
			wantChange: 30,
		},
		{
			name:       "Negative increment is clamped to zero",
			policy:     DefaultRatingPolicy(),
			rating:     1000,
			increment:  -10,
			wantRating: 1000,
			wantChange: 0,
		},
		{
			name:       "Capped at ceiling",
			policy:     DefaultRatingPolicy(),
			rating:     2990,
			increment:  25,
			wantRating: 3000,
			wantChange: 10,
		},
		{
			name:       "Rating above ceiling is never reduced",
			policy:     DefaultRatingPolicy(),
			rating:     3100,
			increment:  10,
			wantRating: 3100,
			wantChange: 0,
		},
		{
			name:       "Zero ceiling disables cap",
			policy:     RatingPolicy{MinIncrement: 0, MaxIncrement: 30},
			rating:     3100,
			increment:  10,
			wantRating: 3110,
			wantChange: 10,
		},
		{
			name:       "Floor applies to losses",
			policy:     RatingPolicy{MinIncrement: -30, MaxIncrement: 30, Floor: 100},
			rating:     110,
			increment:  -30,
			wantRating: 100,
			wantChange: -10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotRating, gotChange := tt.policy.Apply(tt.rating, tt.increment)
			if gotRating != tt.wantRating || gotChange != tt.wantChange {
				t.Errorf("Apply(%d, %d) = (%d, %d), want (%d, %d)",
					tt.rating, tt.increment, gotRating, gotChange, tt.wantRating, tt.wantChange)
			}
		})
	}
}

func TestRatingPolicy_ClampIncrement(t *testing.T) {
	policy := DefaultRatingPolicy()

	for increment, want := range map[int]int{-5: 0, 0: 0, 15: 15, 30: 30, 31: 30} {
		if got := policy.ClampIncrement(increment); got != want {
			t.Errorf("ClampIncrement(%d) = %d, want %d", increment, got, want)
		}
	}
}
