package models

// TradeDetails holds the quantitative fields of one executed trade.
// Dates are kept as the strings they were entered with (ISO-8601 or date-only);
// parsing happens where they are consumed.
type TradeDetails struct {
	TradeID   string  `json:"tradeId" msgpack:"tradeId" csv:"tradeId" validate:"required"`
	OpenDate  string  `json:"openDate" msgpack:"openDate" csv:"openDate"`
	CloseDate string  `json:"closeDate" msgpack:"closeDate" csv:"closeDate"`
	Symbol    string  `json:"symbol" msgpack:"symbol" csv:"symbol" validate:"required"`
	Side      Side    `json:"side" msgpack:"side" csv:"side" validate:"side"`
	Entry     float64 `json:"entry" msgpack:"entry" csv:"entry" validate:"gte=0"`
	Exit      float64 `json:"exit" msgpack:"exit" csv:"exit" validate:"gte=0"`
	Qty       float64 `json:"qty" msgpack:"qty" csv:"qty" validate:"gt=0"`
	PnL       float64 `json:"pnl" msgpack:"pnl" csv:"pnl"`
	Status    Status  `json:"status" msgpack:"status" csv:"status"`
}

// Image is a chart screenshot attached to a trade.
type Image struct {
	URL         string `json:"url" msgpack:"url"`
	Timeframe   string `json:"timeframe" msgpack:"timeframe"`
	Description string `json:"description" msgpack:"description"`
}

// Psychology records the trader's state of mind for a trade.
type Psychology struct {
	IsGreedy       bool   `json:"isGreedy" msgpack:"isGreedy"`
	IsFomo         bool   `json:"isFomo" msgpack:"isFomo"`
	IsRevenge      bool   `json:"isRevenge" msgpack:"isRevenge"`
	EmotionalState string `json:"emotionalState" msgpack:"emotionalState"`
	Notes          string `json:"notes" msgpack:"notes"`
}

// Analysis records the setup review for a trade.
type Analysis struct {
	RiskRewardRatio float64  `json:"riskRewardRatio" msgpack:"riskRewardRatio"`
	SetupType       string   `json:"setupType" msgpack:"setupType"`
	Mistakes        []string `json:"mistakes" msgpack:"mistakes"`
}

// Metrics records execution quality for a trade.
type Metrics struct {
	RiskPerTrade      float64 `json:"riskPerTrade" msgpack:"riskPerTrade"`
	StopLossDeviation float64 `json:"stopLossDeviation" msgpack:"stopLossDeviation"`
	TargetDeviation   float64 `json:"targetDeviation" msgpack:"targetDeviation"`
	MarketConditions  string  `json:"marketConditions" msgpack:"marketConditions"`
	TradingSession    string  `json:"tradingSession" msgpack:"tradingSession"`
}

// Trade is a journal entry: a TradeDetails payload plus annotations.
// TradeID always mirrors Trade.TradeID.
type Trade struct {
	TradeID    string       `json:"tradeId" msgpack:"tradeId"`
	Trade      TradeDetails `json:"trade" msgpack:"trade"`
	Images     []Image      `json:"images" msgpack:"images"`
	Psychology Psychology   `json:"psychology" msgpack:"psychology"`
	Analysis   Analysis     `json:"analysis" msgpack:"analysis"`
	Metrics    Metrics      `json:"metrics" msgpack:"metrics"`
}

// NewTrade wraps details in a journal entry with empty annotations.
func NewTrade(details TradeDetails) Trade {
	return Trade{
		TradeID: details.TradeID,
		Trade:   details,
		Images:  []Image{},
		Analysis: Analysis{
			Mistakes: []string{},
		},
	}
}

// WithID returns a copy of t whose ids are both set to id.
func (t Trade) WithID(id string) Trade {
	t.TradeID = id
	t.Trade.TradeID = id
	return t
}

// AggregatedData is a summary of all trades closed inside one bucket
// (a day, a Monday-start week, or a month). It is derived, never stored.
type AggregatedData struct {
	Date            string  `json:"date"`
	TotalPnL        float64 `json:"totalPnl"`
	TotalTrades     int     `json:"totalTrades"`
	ProfitTrades    int     `json:"profitTrades"`
	LossTrades      int     `json:"lossTrades"`
	MaxProfit       float64 `json:"maxProfit"`
	MaxLoss         float64 `json:"maxLoss"`
	BuyTrades       int     `json:"buyTrades"`
	SellTrades      int     `json:"sellTrades"`
	TotalDuration   float64 `json:"totalDuration"`
	AveragePnL      float64 `json:"averagePnl"`
	AverageDuration float64 `json:"averageDuration"`
}
