package app

import "testing"

func TestCodeAllocatorProducesSixDigits(t *testing.T) {
	a := newCodeAllocator()
	for _, secure := range []bool{false, true} {
		for i := 0; i < 50; i++ {
			code, err := a.next(secure)
			if err != nil {
				t.Fatalf("next(secure=%v): %v", secure, err)
			}
			if len(code) != 6 {
				t.Fatalf("expected 6 digits, got %q", code)
			}
			for _, r := range code {
				if r < '0' || r > '9' {
					t.Fatalf("expected numeric code, got %q", code)
				}
			}
		}
	}
}

func TestScoreDelta(t *testing.T) {
	cases := []struct {
		correct bool
		limit   int
		taken   int
		want    int
	}{
		{true, 30, 5, 25},
		{false, 30, 5, 0},
		{true, 30, 40, 0},
		{true, 30, 30, 0},
		{true, 20, 0, 20},
	}
	for _, tc := range cases {
		if got := scoreDelta(tc.correct, tc.limit, tc.taken); got != tc.want {
			t.Fatalf("scoreDelta(%v, %d, %d) = %d, want %d", tc.correct, tc.limit, tc.taken, got, tc.want)
		}
	}
}
