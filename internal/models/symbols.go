package models

// Supported symbol universe. Lot sizes follow the current NSE/MCX
// contract specifications; they are reference data, not fetched live.

var indexSymbols = []Symbol{
	{Name: "NIFTY", Exchange: NSE, Segment: SegmentIndex, LotSize: 75, TickSize: 0.05},
	{Name: "BANKNIFTY", Exchange: NSE, Segment: SegmentIndex, LotSize: 35, TickSize: 0.05},
	{Name: "FINNIFTY", Exchange: NSE, Segment: SegmentIndex, LotSize: 65, TickSize: 0.05},
	{Name: "MIDCPNIFTY", Exchange: NSE, Segment: SegmentIndex, LotSize: 140, TickSize: 0.05},
	{Name: "SENSEX", Exchange: BSE, Segment: SegmentIndex, LotSize: 20, TickSize: 0.05},
}

var stockSymbols = []Symbol{
	{Name: "RELIANCE", Exchange: NSE, Segment: SegmentStock, LotSize: 500, TickSize: 0.05},
	{Name: "TCS", Exchange: NSE, Segment: SegmentStock, LotSize: 175, TickSize: 0.05},
	{Name: "INFY", Exchange: NSE, Segment: SegmentStock, LotSize: 400, TickSize: 0.05},
	{Name: "HDFCBANK", Exchange: NSE, Segment: SegmentStock, LotSize: 550, TickSize: 0.05},
	{Name: "ICICIBANK", Exchange: NSE, Segment: SegmentStock, LotSize: 700, TickSize: 0.05},
	{Name: "SBIN", Exchange: NSE, Segment: SegmentStock, LotSize: 750, TickSize: 0.05},
	{Name: "AXISBANK", Exchange: NSE, Segment: SegmentStock, LotSize: 625, TickSize: 0.05},
	{Name: "KOTAKBANK", Exchange: NSE, Segment: SegmentStock, LotSize: 400, TickSize: 0.05},
	{Name: "TATAMOTORS", Exchange: NSE, Segment: SegmentStock, LotSize: 800, TickSize: 0.05},
	{Name: "MARUTI", Exchange: NSE, Segment: SegmentStock, LotSize: 50, TickSize: 0.05},
	{Name: "BHARTIARTL", Exchange: NSE, Segment: SegmentStock, LotSize: 475, TickSize: 0.05},
	{Name: "HCLTECH", Exchange: NSE, Segment: SegmentStock, LotSize: 350, TickSize: 0.05},
	{Name: "HINDUNILVR", Exchange: NSE, Segment: SegmentStock, LotSize: 300, TickSize: 0.05},
	{Name: "ASIANPAINT", Exchange: NSE, Segment: SegmentStock, LotSize: 250, TickSize: 0.05},
	{Name: "SUNPHARMA", Exchange: NSE, Segment: SegmentStock, LotSize: 350, TickSize: 0.05},
	{Name: "LT", Exchange: NSE, Segment: SegmentStock, LotSize: 175, TickSize: 0.05},
	{Name: "ONGC", Exchange: NSE, Segment: SegmentStock, LotSize: 2250, TickSize: 0.05},
	{Name: "NTPC", Exchange: NSE, Segment: SegmentStock, LotSize: 1500, TickSize: 0.05},
	{Name: "JSWSTEEL", Exchange: NSE, Segment: SegmentStock, LotSize: 675, TickSize: 0.05},
	{Name: "ADANIPORTS", Exchange: NSE, Segment: SegmentStock, LotSize: 475, TickSize: 0.05},
	{Name: "UPL", Exchange: NSE, Segment: SegmentStock, LotSize: 1355, TickSize: 0.05},
	{Name: "ITC", Exchange: NSE, Segment: SegmentStock, LotSize: 1600, TickSize: 0.05},
	{Name: "WIPRO", Exchange: NSE, Segment: SegmentStock, LotSize: 3000, TickSize: 0.05},
	{Name: "BAJFINANCE", Exchange: NSE, Segment: SegmentStock, LotSize: 750, TickSize: 0.05},
	{Name: "TATASTEEL", Exchange: NSE, Segment: SegmentStock, LotSize: 5500, TickSize: 0.05},
	{Name: "SAIL", Exchange: NSE, Segment: SegmentStock, LotSize: 4700, TickSize: 0.05},
	{Name: "HAL", Exchange: NSE, Segment: SegmentStock, LotSize: 150, TickSize: 0.05},
	{Name: "CONCOR", Exchange: NSE, Segment: SegmentStock, LotSize: 1000, TickSize: 0.05},
	{Name: "IEX", Exchange: NSE, Segment: SegmentStock, LotSize: 3750, TickSize: 0.05},
	{Name: "ABFRL", Exchange: NSE, Segment: SegmentStock, LotSize: 2600, TickSize: 0.05},
	{Name: "LICHSGFIN", Exchange: NSE, Segment: SegmentStock, LotSize: 1000, TickSize: 0.05},
	{Name: "NATIONALUM", Exchange: NSE, Segment: SegmentStock, LotSize: 3750, TickSize: 0.05},
}

var commoditySymbols = []Symbol{
	{Name: "GOLD", Exchange: MCX, Segment: SegmentCommodity, LotSize: 100, TickSize: 1},
	{Name: "GOLDM", Exchange: MCX, Segment: SegmentCommodity, LotSize: 10, TickSize: 1},
	{Name: "SILVER", Exchange: MCX, Segment: SegmentCommodity, LotSize: 30, TickSize: 1},
	{Name: "SILVERM", Exchange: MCX, Segment: SegmentCommodity, LotSize: 5, TickSize: 1},
	{Name: "CRUDEOIL", Exchange: MCX, Segment: SegmentCommodity, LotSize: 100, TickSize: 1},
	{Name: "CRUDEOILM", Exchange: MCX, Segment: SegmentCommodity, LotSize: 10, TickSize: 1},
	{Name: "NATURALGAS", Exchange: MCX, Segment: SegmentCommodity, LotSize: 1250, TickSize: 0.1},
	{Name: "NATGASMINI", Exchange: MCX, Segment: SegmentCommodity, LotSize: 250, TickSize: 0.1},
	{Name: "COPPER", Exchange: MCX, Segment: SegmentCommodity, LotSize: 2500, TickSize: 0.05},
	{Name: "ZINC", Exchange: MCX, Segment: SegmentCommodity, LotSize: 5000, TickSize: 0.05},
}

var symbolIndex = buildSymbolIndex()

func buildSymbolIndex() map[string]Symbol {
	idx := make(map[string]Symbol)
	for _, group := range [][]Symbol{indexSymbols, stockSymbols, commoditySymbols} {
		for _, s := range group {
			idx[s.Name] = s
		}
	}
	return idx
}

// LookupSymbol returns the reference data for a symbol name.
func LookupSymbol(name string) (Symbol, bool) {
	s, ok := symbolIndex[name]
	return s, ok
}

// IsKnownSymbol reports whether the symbol is part of the supported universe.
func IsKnownSymbol(name string) bool {
	_, ok := symbolIndex[name]
	return ok
}

// AllSymbols returns every supported symbol, indices first.
func AllSymbols() []Symbol {
	out := make([]Symbol, 0, len(indexSymbols)+len(stockSymbols)+len(commoditySymbols))
	out = append(out, indexSymbols...)
	out = append(out, stockSymbols...)
	out = append(out, commoditySymbols...)
	return out
}

// IndexSymbols returns the supported index symbols.
func IndexSymbols() []Symbol { return append([]Symbol(nil), indexSymbols...) }

// StockSymbols returns the supported F&O stock symbols.
func StockSymbols() []Symbol { return append([]Symbol(nil), stockSymbols...) }

// CommoditySymbols returns the supported MCX commodity symbols.
func CommoditySymbols() []Symbol { return append([]Symbol(nil), commoditySymbols...) }
