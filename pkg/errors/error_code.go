package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidCapital       ErrorCode = 102
	ErrCodeInvalidThreshold     ErrorCode = 103
	ErrCodeInvalidBound         ErrorCode = 104
	ErrCodeInvalidSizing        ErrorCode = 105
	ErrCodeInvalidWindow        ErrorCode = 106
	ErrCodeMissingParameter     ErrorCode = 107
	ErrCodeSchemaVersionInvalid ErrorCode = 108
	ErrCodeInvalidTimeRange     ErrorCode = 109

	// Data errors (200-299)
	ErrCodeEmptySeries       ErrorCode = 200
	ErrCodeOutOfOrderSeries  ErrorCode = 201
	ErrCodeSymbolMismatch    ErrorCode = 202
	ErrCodeDataNotFound      ErrorCode = 203
	ErrCodeQueryFailed       ErrorCode = 204
	ErrCodeDataSourceClosed  ErrorCode = 205
	ErrCodeInvalidBar        ErrorCode = 206

	// Strategy errors (300-399)
	ErrCodeUnknownStrategy        ErrorCode = 300
	ErrCodeStrategyConfigError    ErrorCode = 301
	ErrCodeStrategyEvaluateFailed ErrorCode = 302

	// Ledger errors (400-499)
	ErrCodeInsufficientCash  ErrorCode = 400
	ErrCodeNoPosition        ErrorCode = 401
	ErrCodeLedgerFrozen      ErrorCode = 402
	ErrCodeInvalidQuantity   ErrorCode = 403
	ErrCodeReconcileMismatch ErrorCode = 404

	// Backtest errors (500-599)
	ErrCodeInvalidRunState ErrorCode = 500
	ErrCodeRunFailed       ErrorCode = 501
	ErrCodeNoStrategies    ErrorCode = 502
	ErrCodeNoSeries        ErrorCode = 503
	ErrCodeNoResultsDir    ErrorCode = 504
	ErrCodeNoDataSource    ErrorCode = 505
	ErrCodeEngineNotReady  ErrorCode = 506

	// Market data errors (600-699)
	ErrCodeMarketDataFetchFailed ErrorCode = 600
	ErrCodeMarketDataWriteFailed ErrorCode = 601
	ErrCodeStoreFailed           ErrorCode = 602
	ErrCodeInvalidTimespan       ErrorCode = 603
	ErrCodeInvalidProvider       ErrorCode = 604
	ErrCodeInvalidWriter         ErrorCode = 605
	ErrCodeStreamNotSupported    ErrorCode = 606
	ErrCodeUniverseLoadFailed    ErrorCode = 607
)
