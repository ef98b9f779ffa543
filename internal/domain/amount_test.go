package domain

import (
	"math"
	"testing"
)

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name    string
		payload *TransferPayload
		want    float64
	}{
		{
			name:    "plain transfer",
			payload: &TransferPayload{Amount: 5_000_000},
			want:    5.0,
		},
		{
			name: "mosaic transfer with matching asset",
			payload: &TransferPayload{
				Amount:  3,
				Mosaics: []Mosaic{{ID: XEM, Quantity: 2_000_000}},
			},
			want: 6.0,
		},
		{
			name: "mosaic transfer picks the matching mosaic",
			payload: &TransferPayload{
				Amount: 1_000_000,
				Mosaics: []Mosaic{
					{ID: MosaicID{NamespaceID: "foo", Name: "bar"}, Quantity: 99},
					{ID: XEM, Quantity: 7},
				},
			},
			want: 7.0,
		},
		{
			name: "mosaic transfer without target asset",
			payload: &TransferPayload{
				Amount:  1_000_000,
				Mosaics: []Mosaic{{ID: MosaicID{NamespaceID: "foo", Name: "bar"}, Quantity: 10}},
			},
			want: 0,
		},
		{
			name: "namespace must match exactly",
			payload: &TransferPayload{
				Amount:  1_000_000,
				Mosaics: []Mosaic{{ID: MosaicID{NamespaceID: "nem.sub", Name: "xem"}, Quantity: 10}},
			},
			want: 0,
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAmount(tt.payload, DefaultAsset)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExtractAmount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractAmount_Divisibility(t *testing.T) {
	asset := AssetDefinition{ID: MosaicID{NamespaceID: "acme", Name: "coin"}, Divisibility: 2}
	got := ExtractAmount(&TransferPayload{Amount: 250}, asset)
	if got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}
}

func TestCosignatoryAllowList(t *testing.T) {
	list := NewCosignatoryAllowList([]string{"AABB", " ccdd ", "", "aabb"})

	if list.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", list.Len())
	}
	if !list.Contains("aabb") || !list.Contains("AABB") {
		t.Error("expected case-insensitive match for aabb")
	}
	if !list.Contains("CCDD") {
		t.Error("expected trimmed key ccdd")
	}
	if list.Contains("eeff") {
		t.Error("unexpected match for eeff")
	}
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("node.example:7891", 7890)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.Host != "node.example" || ep.Port != 7891 {
		t.Errorf("unexpected endpoint %+v", ep)
	}

	ep, err = ParseEndpoint("node.example", 7890)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.Port != 7890 {
		t.Errorf("expected default port, got %d", ep.Port)
	}
	if ep.WSURL() != "ws://node.example:7778/w/messages" {
		t.Errorf("unexpected ws url %s", ep.WSURL())
	}
	if ep.URL() != "http://node.example:7890" {
		t.Errorf("unexpected url %s", ep.URL())
	}

	if _, err := ParseEndpoint("node.example:abc", 7890); err == nil {
		t.Error("expected error for non-numeric port")
	}
	if _, err := ParseEndpoint("", 7890); err == nil {
		t.Error("expected error for empty endpoint")
	}
}
