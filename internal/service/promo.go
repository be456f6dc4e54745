package service

import (
	"errors"
	"strings"
)

var ErrUnknownPromo = errors.New("unknown promotion code")

// PromoList is the precomputed allow-list of known promotion codes.
// Checkout validates against it instead of a live processor lookup so an
// unknown code fails fast rather than risking a slow round-trip
// mid-checkout. The list is loaded from config at process start.
type PromoList struct {
	codes map[string]bool
}

func NewPromoList(codes []string) *PromoList {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			m[c] = true
		}
	}
	return &PromoList{codes: m}
}

func (p *PromoList) Validate(code string) error {
	if code == "" {
		return nil
	}
	if !p.codes[strings.ToUpper(strings.TrimSpace(code))] {
		return ErrUnknownPromo
	}
	return nil
}
