package normalizers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		normalizer string
		expected   string
	}{
		{name: "lowercase", value: "A@X.COM", normalizer: "lowercase", expected: "a@x.com"},
		{name: "trim", value: "  100 ", normalizer: "trim", expected: "100"},
		{name: "nemail", value: " Foo@Bar.COM ", normalizer: "nemail", expected: "foo@bar.com"},
		{name: "nphone strips formatting", value: "+1 (555) 010-0100", normalizer: "nphone", expected: "15550100100"},
		{name: "digits_only", value: "a1b2c3", normalizer: "digits_only", expected: "123"},
		{name: "unknown normalizer is identity", value: "AbC", normalizer: "nope", expected: "AbC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizers.Apply(tt.value, tt.normalizer))
		})
	}
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "a@x.com", normalizers.ApplyChain("  A@X.com ", "trim", "lowercase"))
}
