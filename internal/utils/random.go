package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var otpUpperBound = big.NewInt(1000000)

// GenerateRandomOTP 生成 6 位数字验证码
func GenerateRandomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpUpperBound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
