package hyperliquid

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

type perpContext struct {
	Index       int
	FundingRate float64
	OraclePrice float64
	MarkPrice   float64
	SzDecimals  int
}

// parsePerpContexts flattens the metaAndAssetCtxs payload, which pairs a
// universe array with a parallel asset-context array.
func parsePerpContexts(payload any) (map[string]perpContext, error) {
	universe, ctxs := extractUniverseAndCtxs(payload)
	if len(universe) == 0 || len(ctxs) == 0 {
		return nil, errors.New("metaAndAssetCtxs missing universe or asset contexts")
	}
	result := make(map[string]perpContext)
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name", "coin", "symbol")
		if name == "" {
			continue
		}
		ctx, ok := indexedMap(ctxs, i)
		if !ok {
			continue
		}
		result[name] = perpContext{
			Index:       intFromAny(meta["index"], i),
			FundingRate: floatFromMap(ctx, "funding", "fundingRate"),
			OraclePrice: floatFromMap(ctx, "oraclePx", "oraclePrice", "oracle"),
			MarkPrice:   floatFromMap(ctx, "markPx", "markPrice", "mark"),
			SzDecimals:  intFromAny(meta["szDecimals"], -1),
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no perp contexts parsed")
	}
	return result, nil
}

func extractUniverseAndCtxs(payload any) ([]any, []any) {
	switch data := payload.(type) {
	case []any:
		if len(data) < 2 {
			return nil, nil
		}
		meta, ok := toMap(data[0])
		if !ok {
			return nil, nil
		}
		universe, _ := toSlice(meta["universe"])
		ctxs, _ := toSlice(data[1])
		return universe, ctxs
	case map[string]any:
		meta, ok := toMap(data["meta"])
		if !ok {
			meta = data
		}
		universe, _ := toSlice(meta["universe"])
		ctxs, _ := toSlice(data["assetCtxs"])
		return universe, ctxs
	default:
		return nil, nil
	}
}

// parseMids extracts symbol -> mid from either a ws allMids message or the
// flat /info allMids response.
func parseMids(payload map[string]any) map[string]float64 {
	var mids map[string]any
	if data, ok := toMap(payload["data"]); ok {
		if raw, ok := toMap(data["mids"]); ok {
			mids = raw
		}
	}
	if mids == nil {
		if raw, ok := toMap(payload["mids"]); ok {
			mids = raw
		}
	}
	if mids == nil {
		if _, hasData := payload["data"]; !hasData {
			mids = payload
		}
	}
	if mids == nil {
		return nil
	}
	out := make(map[string]float64, len(mids))
	for asset, v := range mids {
		if f, ok := floatFromAny(v); ok {
			out[asset] = f
		}
	}
	return out
}

func decodeWSMessage(msg json.RawMessage) (map[string]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func indexedMap(items []any, idx int) (map[string]any, bool) {
	if idx < 0 || idx >= len(items) {
		return nil, false
	}
	return toMap(items[idx])
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intFromAny(v any, fallback int) int {
	if f, ok := floatFromAny(v); ok {
		return int(f)
	}
	return fallback
}
