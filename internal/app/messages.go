package app

import (
	"fmt"
	"strconv"
	"strings"

	"cryptoPositionWatch/internal/domain"
)

// Longest suffix first so FDUSD is not read as USD.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// closureMessage renders the text sent when a position is closed.
func closureMessage(rec domain.PositionRecord) string {
	if profit, pct, ok := rec.RealizedPnL(); ok {
		icon := "☠️☠️"
		if profit > 0 {
			icon = "💰💰"
		}
		return fmt.Sprintf("%s %s for %s — P/L: %s (%.2f%%)",
			icon, reasonLabel(rec.CloseReason), rec.Symbol, formatQuote(profit, quoteAsset(rec.Symbol)), pct)
	}

	details := fmt.Sprintf("%s %s @ %s", rec.Side, formatFloat(rec.Quantity), formatFloat(rec.EntryPrice))

	switch rec.CloseReason {
	case domain.CloseReasonTakeProfit:
		return fmt.Sprintf("💰💰 TP for %s (%s), order %s filled", rec.Symbol, details, rec.ClosingOrderID)
	case domain.CloseReasonStopLoss:
		return fmt.Sprintf("☠️☠️ SL for %s (%s), order %s filled", rec.Symbol, details, rec.ClosingOrderID)
	case domain.CloseReasonCancelled:
		return fmt.Sprintf("🔔 Position closed: %s (%s), order %s cancelled without fill", rec.Symbol, details, rec.ClosingOrderID)
	default:
		return fmt.Sprintf("🔔 Position closed: %s (%s)", rec.Symbol, details)
	}
}

func reasonLabel(reason domain.CloseReason) string {
	if reason == domain.CloseReasonTakeProfit {
		return "TP"
	}
	return "SL"
}

// quoteAsset guesses the quote asset from the symbol suffix. Empty if unknown.
func quoteAsset(symbol string) string {
	for _, q := range quoteAssets {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return q
		}
	}
	return ""
}

func formatQuote(v float64, asset string) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	if asset == "" {
		return s
	}
	return s + " " + asset
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
