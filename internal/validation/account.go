// Package validation содержит функции валидации входных данных.
package validation

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

const addressHexLen = 40

// IsValidAccount проверяет адрес аккаунта: 0x и 20 байт в hex.
// Адрес в смешанном регистре должен проходить проверку контрольной суммы EIP-55.
func IsValidAccount(account string) bool {
	if len(account) != 2+addressHexLen || !strings.HasPrefix(account, "0x") {
		return false
	}

	body := account[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return false
	}

	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body == lower || body == upper {
		return true
	}

	return body == checksumHex(lower)
}

// NormalizeAccount приводит корректный адрес к нижнему регистру.
func NormalizeAccount(account string) (string, bool) {
	if !IsValidAccount(account) {
		return "", false
	}
	return "0x" + strings.ToLower(account[2:]), true
}

// ChecksumAccount возвращает адрес в записи EIP-55.
func ChecksumAccount(account string) (string, bool) {
	if !IsValidAccount(account) {
		return "", false
	}
	return "0x" + checksumHex(strings.ToLower(account[2:])), true
}

func checksumHex(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i := range out {
		if out[i] < 'a' || out[i] > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] -= 'a' - 'A'
		}
	}
	return string(out)
}
