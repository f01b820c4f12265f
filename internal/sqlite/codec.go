package sqlite

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return v, nil
}

func decodeNullAmount(s sql.NullString) (*big.Int, error) {
	if !s.Valid {
		return nil, nil
	}
	return decodeAmount(s.String)
}

func encodeAddress(a common.Address) string {
	return a.Hex()
}

func decodeAddress(s string) common.Address {
	return common.HexToAddress(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
