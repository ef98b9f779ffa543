package domain

import "math"

// AssetDefinition identifies the asset counted against the signing limit.
type AssetDefinition struct {
	ID           MosaicID
	Divisibility int
}

// DefaultAsset is XEM with divisibility 6.
var DefaultAsset = AssetDefinition{ID: XEM, Divisibility: 6}

// ExtractAmount returns the amount of asset carried by a transfer.
//
// Without mosaics the raw amount is the quantity, scaled by divisibility.
// With mosaics the raw amount is a multiplier: amount / 10^divisibility
// times the matching mosaic's quantity. A missing mosaic contributes 0.
func ExtractAmount(p *TransferPayload, asset AssetDefinition) float64 {
	if p == nil {
		return 0
	}
	scale := math.Pow10(asset.Divisibility)

	if len(p.Mosaics) == 0 {
		return float64(p.Amount) / scale
	}

	multiplier := float64(p.Amount) / scale
	for _, m := range p.Mosaics {
		if m.ID == asset.ID {
			return multiplier * float64(m.Quantity)
		}
	}
	return 0
}
