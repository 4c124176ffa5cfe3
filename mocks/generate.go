package mocks

//go:generate mockgen -destination=./mock_datasource.go -package=mocks github.com/stratsim-lab/stratsim/internal/backtest/datasource DataSource
//go:generate mockgen -destination=./mock_store.go -package=mocks github.com/stratsim-lab/stratsim/internal/store BarStore
//go:generate mockgen -destination=./mock_strategy.go -package=mocks github.com/stratsim-lab/stratsim/internal/strategy Strategy
//go:generate mockgen -destination=./mock_writer.go -package=mocks github.com/stratsim-lab/stratsim/pkg/marketdata/writer MarketDataWriter
