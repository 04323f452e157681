package signal

import (
	"fmt"
	"strings"
	"time"

	"proppilot/internal/types"

	"github.com/tidwall/gjson"
)

// ParseSnapshot validates one feature-feed document and converts it
// into the typed snapshot. Validation happens here, at the intake
// boundary: a document that passes is trusted by every consumer
// downstream, and each optional block flips its Has* flag only when
// actually present and well formed.
func ParseSnapshot(raw string) (types.MarketSnapshot, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot payload is empty")
	}
	if !gjson.Valid(raw) {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot payload is not valid json")
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot root must be an object")
	}

	var snap types.MarketSnapshot

	snap.Symbol = strings.ToUpper(strings.TrimSpace(doc.Get("symbol").String()))
	if snap.Symbol == "" {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot missing symbol")
	}
	taken := doc.Get("taken")
	if !taken.Exists() {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot missing taken timestamp")
	}
	ts, err := time.Parse(time.RFC3339, taken.String())
	if err != nil {
		return types.MarketSnapshot{}, fmt.Errorf("snapshot taken timestamp invalid: %w", err)
	}
	snap.Taken = ts
	snap.Price = doc.Get("price").Float()
	snap.ATRPct = doc.Get("atr_pct").Float()

	if regime := doc.Get("regime"); regime.Exists() {
		r, err := parseRegime(regime.String())
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		snap.Regime = r
	}
	if tfs := doc.Get("timeframes"); tfs.Exists() {
		readings, err := parseTimeframes(tfs)
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		snap.Readings = readings
		snap.HasReadings = len(readings) > 0
	}
	if vol := doc.Get("volume"); vol.Exists() {
		block, err := parseVolume(vol)
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		snap.Volume = block
		snap.HasVolume = true
	}
	if st := doc.Get("structure"); st.Exists() {
		block, err := parseStructure(st)
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		snap.Structure = block
		snap.HasStructure = true
	}
	if sig := doc.Get("signal"); sig.Exists() {
		block, err := parseExternalSignal(sig)
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		snap.Signal = block
		snap.HasSignal = block.Direction != types.SideFlat
	}
	return snap, nil
}

func parseRegime(raw string) (types.Regime, error) {
	switch r := types.Regime(strings.ToLower(strings.TrimSpace(raw))); r {
	case types.RegimeTrendingUp, types.RegimeTrendingDown, types.RegimeRanging, types.RegimeVolatile:
		return r, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unknown regime: %s", raw)
	}
}

func parseTimeframes(tfs gjson.Result) ([]types.TimeframeReading, error) {
	if !tfs.IsObject() {
		return nil, fmt.Errorf("timeframes must be an object")
	}
	byName := make(map[types.Timeframe]gjson.Result)
	var walkErr error
	tfs.ForEach(func(key, value gjson.Result) bool {
		name := types.Timeframe(strings.ToLower(strings.TrimSpace(key.String())))
		if !knownTimeframe(name) {
			walkErr = fmt.Errorf("unknown timeframe: %s", key.String())
			return false
		}
		if !value.IsObject() {
			walkErr = fmt.Errorf("timeframe %s must be an object", name)
			return false
		}
		byName[name] = value
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	// Emit in ladder order so downstream iteration is deterministic.
	readings := make([]types.TimeframeReading, 0, len(byName))
	for _, tf := range types.Timeframes {
		value, ok := byName[tf]
		if !ok {
			continue
		}
		trend := value.Get("trend").Float()
		osc := value.Get("oscillator").Float()
		if trend < 0 || trend > 1 {
			return nil, fmt.Errorf("timeframe %s trend out of range: %v", tf, trend)
		}
		if osc < 0 || osc > 100 {
			return nil, fmt.Errorf("timeframe %s oscillator out of range: %v", tf, osc)
		}
		readings = append(readings, types.TimeframeReading{Timeframe: tf, Trend: trend, Oscillator: osc})
	}
	return readings, nil
}

func knownTimeframe(tf types.Timeframe) bool {
	for _, known := range types.Timeframes {
		if tf == known {
			return true
		}
	}
	return false
}

func parseVolume(vol gjson.Result) (types.VolumeBlock, error) {
	if !vol.IsObject() {
		return types.VolumeBlock{}, fmt.Errorf("volume must be an object")
	}
	block := types.VolumeBlock{
		RelativeVolume: vol.Get("relative_volume").Float(),
		Accumulation:   vol.Get("accumulation").Bool(),
		Distribution:   vol.Get("distribution").Bool(),
		SpikeRatio:     vol.Get("spike_ratio").Float(),
		Imbalance:      vol.Get("imbalance").Float(),
	}
	if block.RelativeVolume < 0 {
		return types.VolumeBlock{}, fmt.Errorf("volume.relative_volume cannot be negative")
	}
	if block.Imbalance < -1 || block.Imbalance > 1 {
		return types.VolumeBlock{}, fmt.Errorf("volume.imbalance out of range: %v", block.Imbalance)
	}
	return block, nil
}

func parseStructure(st gjson.Result) (types.StructureBlock, error) {
	if !st.IsObject() {
		return types.StructureBlock{}, fmt.Errorf("structure must be an object")
	}
	block := types.StructureBlock{
		RangePosition:     st.Get("range_position").Float(),
		BandPosition:      st.Get("band_position").Float(),
		SupportDistPct:    st.Get("support_dist_pct").Float(),
		ResistanceDistPct: st.Get("resistance_dist_pct").Float(),
		ConfluenceCount:   int(st.Get("confluence_count").Int()),
	}
	if block.RangePosition < 0 || block.RangePosition > 1 {
		return types.StructureBlock{}, fmt.Errorf("structure.range_position out of range: %v", block.RangePosition)
	}
	if block.BandPosition < 0 || block.BandPosition > 1 {
		return types.StructureBlock{}, fmt.Errorf("structure.band_position out of range: %v", block.BandPosition)
	}
	if block.ConfluenceCount < 0 {
		return types.StructureBlock{}, fmt.Errorf("structure.confluence_count cannot be negative")
	}
	return block, nil
}

func parseExternalSignal(sig gjson.Result) (types.ExternalSignal, error) {
	if !sig.IsObject() {
		return types.ExternalSignal{}, fmt.Errorf("signal must be an object")
	}
	dir := strings.ToLower(strings.TrimSpace(sig.Get("direction").String()))
	var side types.Side
	switch dir {
	case "long", "buy":
		side = types.SideLong
	case "short", "sell":
		side = types.SideShort
	case "", "flat", "none":
		side = types.SideFlat
	default:
		return types.ExternalSignal{}, fmt.Errorf("unknown signal direction: %s", dir)
	}
	conf := sig.Get("confidence").Float()
	if conf < 0 || conf > 100 {
		return types.ExternalSignal{}, fmt.Errorf("signal confidence out of range: %v", conf)
	}
	return types.ExternalSignal{Direction: side, Confidence: conf}, nil
}
