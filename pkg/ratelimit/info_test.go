package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name          string
		headers       map[string]string
		wantRetry     *int
		wantLimit     *int
		wantRemaining *int
		wantReset     *time.Time
	}{
		{
			name:    "no headers",
			headers: map[string]string{},
		},
		{
			name:      "retry after seconds",
			headers:   map[string]string{"Retry-After": "2"},
			wantRetry: intPtr(2),
		},
		{
			name:      "retry after http date",
			headers:   map[string]string{"Retry-After": now.Add(5 * time.Second).UTC().Format(http.TimeFormat)},
			wantRetry: intPtr(5),
		},
		{
			name: "limit and remaining",
			headers: map[string]string{
				"X-RateLimit-Limit":     "240",
				"X-RateLimit-Remaining": "17",
			},
			wantLimit:     intPtr(240),
			wantRemaining: intPtr(17),
		},
		{
			name:      "reset as epoch seconds",
			headers:   map[string]string{"X-RateLimit-Reset": "1700000030"},
			wantReset: timePtr(time.Unix(1_700_000_030, 0)),
		},
		{
			name:      "reset as relative seconds",
			headers:   map[string]string{"X-RateLimit-Reset": "12"},
			wantReset: timePtr(now.Add(12 * time.Second)),
		},
		{
			name: "garbage values ignored",
			headers: map[string]string{
				"Retry-After":           "soon",
				"X-RateLimit-Remaining": "many",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			info := ParseHeaders(h, now)

			checkIntPtr(t, "RetryAfter", info.RetryAfter, tt.wantRetry)
			checkIntPtr(t, "Limit", info.Limit, tt.wantLimit)
			checkIntPtr(t, "Remaining", info.Remaining, tt.wantRemaining)

			switch {
			case tt.wantReset == nil && info.ResetAt != nil:
				t.Errorf("ResetAt = %v, want nil", *info.ResetAt)
			case tt.wantReset != nil && info.ResetAt == nil:
				t.Errorf("ResetAt = nil, want %v", *tt.wantReset)
			case tt.wantReset != nil && !info.ResetAt.Equal(*tt.wantReset):
				t.Errorf("ResetAt = %v, want %v", *info.ResetAt, *tt.wantReset)
			}
		})
	}
}

func TestInfo_Delay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		info   Info
		want   time.Duration
		wantOK bool
	}{
		{
			name:   "empty",
			info:   Info{},
			want:   0,
			wantOK: false,
		},
		{
			name:   "retry after wins",
			info:   Info{RetryAfter: intPtr(2), ResetAt: timePtr(now.Add(30 * time.Second))},
			want:   2 * time.Second,
			wantOK: true,
		},
		{
			name:   "zero retry after falls back to reset",
			info:   Info{RetryAfter: intPtr(0), ResetAt: timePtr(now.Add(7 * time.Second))},
			want:   7 * time.Second,
			wantOK: true,
		},
		{
			name:   "reset in the past clamps to zero",
			info:   Info{ResetAt: timePtr(now.Add(-10 * time.Second))},
			want:   0,
			wantOK: false,
		},
		{
			name:   "remaining only",
			info:   Info{Remaining: intPtr(0)},
			want:   0,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.info.Delay(now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Delay() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestInfo_Empty(t *testing.T) {
	if !(Info{}).Empty() {
		t.Error("zero Info should be empty")
	}
	if (Info{Limit: intPtr(1)}).Empty() {
		t.Error("Info with Limit should not be empty")
	}
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func checkIntPtr(t *testing.T, field string, got, want *int) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s = %d, want nil", field, *got)
	case want != nil && got == nil:
		t.Errorf("%s = nil, want %d", field, *want)
	case want != nil && *got != *want:
		t.Errorf("%s = %d, want %d", field, *got, *want)
	}
}
