package credentials

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiresWithinSkew(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		cfg  string
		want bool
	}{
		{
			name: "already expired",
			cfg:  `{"credentials":{"tokenExpiresAt":"` + now.Add(-time.Minute).Format(time.RFC3339) + `"}}`,
			want: true,
		},
		{
			name: "within skew",
			cfg:  `{"credentials":{"tokenExpiresAt":"` + now.Add(30*time.Second).Format(time.RFC3339) + `"}}`,
			want: true,
		},
		{
			name: "well beyond skew",
			cfg:  `{"credentials":{"tokenExpiresAt":"` + now.Add(time.Hour).Format(time.RFC3339) + `"}}`,
			want: false,
		},
		{
			name: "zero value expiry",
			cfg:  `{"credentials":{}}`,
			want: false,
		},
		{
			name: "malformed json",
			cfg:  `not json`,
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := expiresWithinSkew(json.RawMessage(tc.cfg), RefreshSkew)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLockForReturnsSameMutexForSameConnector(t *testing.T) {
	s := &Store{locks: make(map[string]*sync.Mutex)}
	a := s.lockFor("conn-1")
	b := s.lockFor("conn-1")
	c := s.lockFor("conn-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
