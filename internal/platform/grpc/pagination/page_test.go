package pagination

import "testing"

func TestClampPageSize(t *testing.T) {
	tests := []struct {
		name  string
		value int
		cfg   PageSizeConfig
		want  int
	}{
		{name: "default", value: 0, cfg: Traces, want: 20},
		{name: "negative", value: -3, cfg: Traces, want: 20},
		{name: "within", value: 7, cfg: Traces, want: 7},
		{name: "capped", value: 500, cfg: Traces, want: 100},
		{name: "no max", value: 500, cfg: PageSizeConfig{Default: 5}, want: 500},
		{name: "floor", value: 0, cfg: PageSizeConfig{}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampPageSize(tt.value, tt.cfg); got != tt.want {
				t.Fatalf("ClampPageSize(%d) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
