package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLuna(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{name: "Valid number", number: "4561261212345467", want: true},
		{name: "Invalid check digit", number: "4561261212345468", want: false},
		{name: "Not a number", number: "not-a-number", want: false},
		{name: "Empty string", number: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLuna(tt.number))
		})
	}
}

func TestNewOrderNo(t *testing.T) {
	orderNo := NewOrderNo()

	assert.Len(t, orderNo, orderNoLength)
	assert.True(t, IsLuna(orderNo))
}
