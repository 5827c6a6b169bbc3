package auth

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRegister(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterInput
		invalid []string
	}{
		{name: "minimal", input: RegisterInput{Username: "alice", Password: "pw1"}},
		{name: "with phone", input: RegisterInput{Username: "a.b-c_d", Password: "pw1", Phone: "+1 (555) 010-0"}},
		{name: "missing everything", input: RegisterInput{}, invalid: []string{"username", "password"}},
		{name: "short username", input: RegisterInput{Username: "ab", Password: "pw"}, invalid: []string{"username"}},
		{name: "spaces in username", input: RegisterInput{Username: "al ice", Password: "pw"}, invalid: []string{"username"}},
		{name: "long password", input: RegisterInput{Username: "alice", Password: strings.Repeat("x", 201)}, invalid: []string{"password"}},
		{name: "bad phone", input: RegisterInput{Username: "alice", Password: "pw", Phone: "call me"}, invalid: []string{"phone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateRegister(tt.input)
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}

			var validation ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Len(t, validation.Fields, len(tt.invalid))
			for _, field := range tt.invalid {
				assert.Contains(t, validation.Fields, field)
			}
		})
	}
}

func TestValidateRegister_Normalises(t *testing.T) {
	reg, err := validateRegister(RegisterInput{Username: "  alice ", Password: " pw1 ", Phone: "   "})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.username)
	assert.Equal(t, " pw1 ", reg.password, "passwords are taken verbatim")
	assert.Nil(t, reg.phone)
}

func TestValidationError_MessageIsStable(t *testing.T) {
	err := ValidationError{Fields: map[string]string{"username": "required", "password": "required"}}
	assert.Equal(t, "invalid input: password: required; username: required", err.Error())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", ClientKey(req, false))
	assert.Equal(t, "203.0.113.1", ClientKey(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.10", ClientKey(req, true))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientKey(req, false))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", KeyFunc(false)(req))
}
