package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradePnl struct {
	// Realized PnL. By adding all the sell trades' pnl.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Unrealized PnL. Mark-to-market gain of the residual open position at the final bar.
	UnrealizedPnL float64 `yaml:"unrealized_pnl"`
	// Total PnL. By adding RealizedPnL and UnrealizedPnL.
	TotalPnL float64 `yaml:"total_pnl"`
	// Maximum loss. Find all realized pnl's minimum value.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. Find all realized pnl's maximum value.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of all trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of round trips closed with positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of round trips closed with negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
	// Maximum drawdown of the equity curve, as a fraction of the peak.
	MaxDrawdown float64 `yaml:"max_drawdown"`
}

type TradeStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Strategy is the name of the strategy that produced these stats.
	Strategy string `yaml:"strategy"`
	// Symbol of the traded instrument.
	Symbol string `yaml:"symbol"`
	// Result of all trades.
	TradeResult TradeResult `yaml:"trade_result"`
	// Total fees.
	TotalFees float64 `yaml:"total_fees"`
	// PnL of all trades.
	TradePnl TradePnl `yaml:"trade_pnl"`
	// Buy and hold PnL: what one share bought at the first close and valued
	// at the last close would have earned.
	BuyAndHoldPnl float64 `yaml:"buy_and_hold_pnl"`
	// TradesFilePath is the path to the trades parquet file, when persisted.
	TradesFilePath string `yaml:"trades_file_path,omitempty" json:"trades_file_path,omitempty"`
	// EquityFilePath is the path to the equity curve parquet file, when persisted.
	EquityFilePath string `yaml:"equity_file_path,omitempty" json:"equity_file_path,omitempty"`
}

func WriteTradeStats(path string, stats []TradeStats) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal trade stats to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trade stats to file: %w", err)
	}

	return nil
}
