package market

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"sol/usdt": "SOL",
		"SOL/USDT": "SOL",
		"btc/usd":  "BTC",
		"eth-usdt": "ETH",
		"doge-usd": "DOGE",
		" sol ":    "SOL",
		"SOL":      "SOL",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, raw := range []string{"buy", "BUY", "long", " Long "} {
		d, err := ParseDirection(raw)
		if err != nil || d != Long {
			t.Errorf("ParseDirection(%q) = %v, %v", raw, d, err)
		}
	}
	for _, raw := range []string{"sell", "short", "SHORT"} {
		d, err := ParseDirection(raw)
		if err != nil || d != Short {
			t.Errorf("ParseDirection(%q) = %v, %v", raw, d, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("ParseDirection accepted garbage")
	}
}

func TestDirectionJSON(t *testing.T) {
	data, err := json.Marshal(Short)
	if err != nil || string(data) != `"SHORT"` {
		t.Fatalf("marshal short: %s, %v", data, err)
	}

	var d Direction
	if err := json.Unmarshal([]byte(`"buy"`), &d); err != nil || d != Long {
		t.Fatalf("unmarshal buy: %v, %v", d, err)
	}
	if err := json.Unmarshal([]byte(`"SHORT"`), &d); err != nil || d != Short {
		t.Fatalf("unmarshal SHORT: %v, %v", d, err)
	}
	// Unknown sides in old ledgers decode as long rather than failing
	// the whole load.
	if err := json.Unmarshal([]byte(`"??"`), &d); err != nil || d != Long {
		t.Fatalf("unmarshal unknown: %v, %v", d, err)
	}
}
