package validate

import (
	"github.com/ShiraazMoollatjie/goluhn"
)

const orderNoLength = 16

func IsLuna(s string) bool {
	err := goluhn.Validate(s)
	return err == nil
}

// NewOrderNo generates a fresh order number with a Luhn check digit.
func NewOrderNo() string {
	return goluhn.Generate(orderNoLength)
}
