package staking

import "testing"

func TestReward(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		rateBps uint64
		want    uint64
	}{
		{"zero amount", 0, 500, 0},
		{"zero rate", 1000, 0, 0},
		{"5 percent", 1000, 500, 50},
		{"10 percent", 1000, 1000, 100},
		{"100 percent", 1000, 10000, 1000},
		{"truncates down", 3, 1, 0},
		{"truncates down large", 19999, 1, 1},
		{"one bps of 10000", 10000, 1, 1},
		{"odd division", 333, 500, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reward(tt.amount, tt.rateBps)
			if got != tt.want {
				t.Errorf("Reward(%d, %d) = %d, want %d", tt.amount, tt.rateBps, got, tt.want)
			}
		})
	}
}

func TestReward_Pure(t *testing.T) {
	// Same inputs, same output, every time.
	for i := 0; i < 3; i++ {
		if got := Reward(12345, 678); got != 837 {
			t.Fatalf("Reward(12345, 678) = %d, want 837", got)
		}
	}
}
