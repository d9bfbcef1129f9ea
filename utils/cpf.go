package utils

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// PIX key types accepted for withdrawals.
const (
	PixKeyCPF    = "cpf"
	PixKeyEmail  = "email"
	PixKeyPhone  = "phone"
	PixKeyRandom = "random"
)

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// ValidCPF checks the two verification digits of a Brazilian CPF. Formatting
// characters are ignored; sequences of a single repeated digit are rejected.
func ValidCPF(cpf string) bool {
	d := onlyDigits(cpf)
	if len(d) != 11 {
		return false
	}
	if strings.Count(d, d[:1]) == 11 {
		return false
	}
	check := func(n int) byte {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		r := (sum * 10) % 11
		if r == 10 {
			r = 0
		}
		return byte(r) + '0'
	}
	return check(9) == d[9] && check(10) == d[10]
}

// ValidPixKey validates key against its declared type.
func ValidPixKey(kind, key string) bool {
	key = strings.TrimSpace(key)
	switch kind {
	case PixKeyCPF:
		return ValidCPF(key)
	case PixKeyEmail:
		addr, err := mail.ParseAddress(key)
		return err == nil && addr.Address == key
	case PixKeyPhone:
		n := len(onlyDigits(key))
		return n == 10 || n == 11 || n == 12 || n == 13
	case PixKeyRandom:
		_, err := uuid.Parse(key)
		return err == nil
	}
	return false
}
