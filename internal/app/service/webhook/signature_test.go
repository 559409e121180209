package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"r1"}}`)
	secret := "sk_test_secret"
	good := Sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		header    string
		secret    string
		wantValid bool
		wantIn    string
	}{
		{name: "valid", body: body, header: good, secret: secret, wantValid: true},
		{name: "valid uppercase hex", body: body, header: strings.ToUpper(good), secret: secret, wantValid: true},
		{name: "missing header", body: body, header: "", secret: secret, wantIn: "missing signature"},
		{name: "missing secret", body: body, header: good, secret: "", wantIn: "secret not configured"},
		{name: "not hex", body: body, header: "zz-not-hex", secret: secret, wantIn: "not hex"},
		{name: "wrong secret", body: body, header: Sign(body, "other"), secret: secret, wantIn: "mismatch"},
		{name: "body altered by one byte", body: append([]byte{' '}, body...), header: good, secret: secret, wantIn: "mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := VerifySignature(tt.body, tt.header, tt.secret)
			assert.Equal(t, tt.wantValid, res.IsValid)
			if tt.wantIn != "" {
				assert.Contains(t, res.Reason, tt.wantIn)
			}
		})
	}
}

func TestVerifySignature_DoesNotLeakDigest(t *testing.T) {
	body := []byte(`{}`)
	computed := Sign(body, "secret")
	res := VerifySignature(body, Sign(body, "wrong"), "secret")
	assert.False(t, res.IsValid)
	assert.NotContains(t, res.Reason, computed)
	assert.Contains(t, res.Reason, computed[:8])
}
