package process

import (
	"testing"

	"github.com/core-tools/hsu-reactor/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateCommandSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      CommandSpec
		shouldErr bool
	}{
		{"simple", CommandSpec{Command: "true"}, false},
		{"with_user", CommandSpec{Command: "id -u", User: "nobody"}, false},
		{"shell_syntax", CommandSpec{Command: "echo a | tr a b > /dev/null"}, false},
		{"empty", CommandSpec{Command: ""}, true},
		{"blank", CommandSpec{Command: "  \t"}, true},
		{"nul_byte", CommandSpec{Command: "echo \x00"}, true},
		{"user_with_space", CommandSpec{Command: "true", User: "no body"}, true},
		{"user_with_colon", CommandSpec{Command: "true", User: "root:root"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandSpec(tt.spec)

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
