package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-sh/fusion/internal/config"
)

func TestGetenvFallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "default", config.Getenv("FUSION_TEST_UNSET_VAR", "default"))
}

func TestGetenvReturnsSetValue(t *testing.T) {
	t.Setenv("FUSION_TEST_VAR", "hello")
	assert.Equal(t, "hello", config.Getenv("FUSION_TEST_VAR", "default"))
}

func TestGetenvIntParsesOrFallsBack(t *testing.T) {
	t.Setenv("FUSION_TEST_INT", "42")
	assert.Equal(t, 42, config.GetenvInt("FUSION_TEST_INT", 7))

	t.Setenv("FUSION_TEST_INT", "not-a-number")
	assert.Equal(t, 7, config.GetenvInt("FUSION_TEST_INT", 7))
}

func TestGetenvBool(t *testing.T) {
	cases := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"TRUE", true},
		{"false", false},
		{"0", false},
		{"garbage", false},
	}
	for _, tc := range cases {
		t.Setenv("FUSION_TEST_BOOL", tc.val)
		assert.Equal(t, tc.want, config.GetenvBool("FUSION_TEST_BOOL", false))
	}
}

func TestGetenvDurationSecondsRejectsNonPositive(t *testing.T) {
	t.Setenv("FUSION_TEST_DURATION", "0")
	assert.Equal(t, 10*time.Second, config.GetenvDurationSeconds("FUSION_TEST_DURATION", 10*time.Second))

	t.Setenv("FUSION_TEST_DURATION", "30")
	assert.Equal(t, 30*time.Second, config.GetenvDurationSeconds("FUSION_TEST_DURATION", 10*time.Second))
}
