package types

// AssetClass buckets instruments by how persistently they trend; trend
// thresholds and point values differ per class.
type AssetClass string

const (
	AssetForex     AssetClass = "forex"
	AssetIndex     AssetClass = "index"
	AssetCommodity AssetClass = "commodity"
	AssetCrypto    AssetClass = "crypto"
)

// BrokerSpec is the broker metadata needed to turn a risk budget into a
// legal order: lot bounds, lot granularity, and the account-currency value
// of one point of price movement per lot.
type BrokerSpec struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	MinLot     float64    `json:"min_lot"`
	MaxLot     float64    `json:"max_lot"`
	LotStep    float64    `json:"lot_step"`
	PointValue float64    `json:"point_value"`
}

// Valid reports whether the spec can size an order at all.
func (b BrokerSpec) Valid() bool {
	return b.MinLot > 0 && b.MaxLot >= b.MinLot && b.LotStep > 0 && b.PointValue > 0
}
