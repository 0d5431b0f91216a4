package domain

import (
	"fmt"
	"math/big"
)

// BigAmount is the serialization boundary for chain amounts. In memory the
// engine works on *big.Int; on the wire and in storage amounts are always
// decimal strings, never JSON numbers, because minor-unit values routinely
// exceed float64 precision.
type BigAmount struct {
	i *big.Int
}

func NewBigAmount(v *big.Int) BigAmount {
	if v == nil {
		return BigAmount{}
	}
	return BigAmount{i: new(big.Int).Set(v)}
}

func BigAmountFromString(s string) (BigAmount, error) {
	if s == "" {
		return BigAmount{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigAmount{}, fmt.Errorf("invalid amount %q", s)
	}
	return BigAmount{i: v}, nil
}

// Int returns a copy of the underlying value, zero when unset.
func (a BigAmount) Int() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.i)
}

func (a BigAmount) String() string {
	if a.i == nil {
		return "0"
	}
	return a.i.String()
}

func (a BigAmount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *BigAmount) UnmarshalText(b []byte) error {
	v, err := BigAmountFromString(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a BigAmount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *BigAmount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*a = BigAmount{}
		return nil
	}
	// Amounts are quoted decimal strings; a bare JSON number may already have
	// lost precision upstream, so it is rejected outright.
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("amount must be a decimal string, got %s", s)
	}
	v, err := BigAmountFromString(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*a = v
	return nil
}
