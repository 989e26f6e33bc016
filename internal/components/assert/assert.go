package assert

import "time"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func PositiveDuration(d time.Duration) {
	if d <= 0 {
		panic("expected duration to be positive")
	}
}
