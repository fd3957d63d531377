package domain

import (
	"errors"
	"testing"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		input   string
		want    TradingPair
		wantErr error
	}{
		{"ethereum/solana", TradingPair{Base: "ethereum", Quote: "solana"}, nil},
		{" bitcoin / usd ", TradingPair{Base: "bitcoin", Quote: "usd"}, nil},
		{"ethereum", TradingPair{}, ErrInvalidPair},
		{"/solana", TradingPair{}, ErrInvalidPair},
		{"ethereum/", TradingPair{}, ErrInvalidPair},
		{"", TradingPair{}, ErrInvalidPair},
		{"solana/solana", TradingPair{}, ErrSameAsset},
	}
	for _, tt := range tests {
		got, err := ParsePair(tt.input)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParsePair(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePair(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePair(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestPairString(t *testing.T) {
	p := TradingPair{Base: "ethereum", Quote: "solana"}
	if got := p.String(); got != "ethereum/solana" {
		t.Errorf("String() = %q, want %q", got, "ethereum/solana")
	}
}
