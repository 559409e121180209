package gormlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCaller(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "/home/ci/src/internal/platform/db/postgres.go:38", want: "internal/platform/db/postgres.go:38"},
		{in: "/go/pkg/mod/gorm.io/gorm@v1.31.1/callbacks.go:12", want: "pkg/mod/gorm.io/gorm@v1.31.1/callbacks.go:12"},
		{in: "/a/b/c/d.go:9", want: "b/c/d.go:9"},
		{in: "/x.go:1", want: "x.go:1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortCaller(tt.in), tt.in)
	}
}
