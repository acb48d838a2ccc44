package export

import "testing"

func TestProgressWriter_SplitWrites(t *testing.T) {
	var seen []float64
	p := newProgressWriter(func(sec float64) { seen = append(seen, sec) })

	p.Write([]byte("out_time_us=150"))
	p.Write([]byte("0000\nprogress=continue\nout_time_ms=1500000\n"))
	p.Write([]byte("out_time_us=N/A\nout_time_us=2500000"))
	p.Flush()

	if len(seen) != 2 || seen[0] != 1.5 || seen[1] != 2.5 {
		t.Errorf("seen = %v, want [1.5 2.5]", seen)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		sec, total float64
		want       int
	}{
		{0, 10, 5},
		{5, 10, 47},
		{10, 10, 90},
		{20, 10, 90},
		{-1, 10, 5},
		{3, 0, 5},
	}
	for _, tc := range tests {
		if got := percent(tc.sec, tc.total, 5, 90); got != tc.want {
			t.Errorf("percent(%v, %v) = %d, want %d", tc.sec, tc.total, got, tc.want)
		}
	}
}
