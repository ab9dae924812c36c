package trader

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBreachBoundary(t *testing.T) {
	b := NewBreaker(d("0.05"))
	b.Seed(time.Now(), d("1000")) // floor = 950

	cases := []struct {
		balance string
		want    bool
	}{
		{"1000", false},
		{"950", false}, // exactly on the floor is tolerated
		{"949", true},
		{"949.99", true},
	}
	for _, tc := range cases {
		if got := b.Breached(d(tc.balance)); got != tc.want {
			t.Errorf("Breached(%s) = %v, want %v", tc.balance, got, tc.want)
		}
	}
}

func TestUnseededBreakerNeverBreaches(t *testing.T) {
	b := NewBreaker(d("0.05"))
	if b.Seeded() {
		t.Error("fresh breaker should not be seeded")
	}
	if b.Breached(d("0")) {
		t.Error("unseeded breaker must not breach")
	}
}

func TestNewDayAndRoll(t *testing.T) {
	b := NewBreaker(d("0.05"))
	day1 := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	b.Seed(day1, d("1000"))

	if b.NewDay(day1.Add(14 * time.Hour)) {
		t.Error("same calendar day reported as new")
	}
	day2 := day1.Add(15 * time.Hour) // 00:30 next day
	if !b.NewDay(day2) {
		t.Error("next calendar day not detected")
	}

	b.Roll(day2, d("980"))
	if !b.Baseline().Equal(d("980")) {
		t.Errorf("baseline after roll = %s, want 980", b.Baseline())
	}
	if b.NewDay(day2) {
		t.Error("rolled breaker still reports a new day")
	}
	// New floor is 931: 940 is fine now even though it breached the old baseline
	if b.Breached(d("940")) {
		t.Error("roll did not move the drawdown floor")
	}
}
