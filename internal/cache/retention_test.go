package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetentionTargets(t *testing.T) {
	const x86 = "x86_64-unknown-linux-musl"
	const arm = "aarch64-unknown-linux-musl"

	tests := []struct {
		name      string
		retention Retention
		current   string
		want      []string
	}{
		{"current", Retention{}, x86, []string{x86}},
		{"current ignores list", Retention{Policy: RetainCurrent, KeepTargets: []string{arm}}, x86, []string{x86}},
		{"listed", Retention{Policy: RetainListed, KeepTargets: []string{arm, x86}}, x86, []string{x86, arm}},
		{"all", Retention{Policy: RetainAll}, x86, nil},
		{"unknown target", Retention{}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.retention.Targets(tt.current))
		})
	}
}

func TestRetentionPolicyText(t *testing.T) {
	for _, name := range []string{"current", "listed", "all"} {
		var p RetentionPolicy
		assert.NoError(t, p.UnmarshalText([]byte(name)))
		assert.Equal(t, name, p.String())
	}

	var p RetentionPolicy
	assert.ErrorIs(t, p.UnmarshalText([]byte("newest")), ErrConfig)
}
