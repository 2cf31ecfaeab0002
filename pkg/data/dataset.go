package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/nwflabs/nwf/pkg/score"
)

const (
	// DatasetInFileName is the default pipeline input file.
	DatasetInFileName = "stocks_data_ai_complete.json"

	// DatasetOutFileName is the default enhanced output file.
	DatasetOutFileName = "stocks_data_nwf_enhanced.json"

	datasetTimeFormat = "2006-01-02 15:04:05"
)

// knownStockKeys are the typed DatasetStock fields, everything else on
// a stock object rides along in Extra.
var knownStockKeys = []string{
	"ticker", "name", "exchange", "sector",
	"price", "prev_close", "ma20", "ma50", "macd", "macd_signal",
	"rsi", "volatility", "vol_spike", "avg_volume", "ai_ensemble",
	"nwf_score", "nwf_confidence", "liquidity_score", "nwf_robust_score",
}

// Dataset is the pipeline JSON envelope. Sibling keys next to "stocks"
// are preserved on round-trip.
type Dataset struct {
	Stocks []*DatasetStock
	Extra  map[string]json.RawMessage
}

// DatasetStock is one stock object in the pipeline file. Optional
// signal fields are pointers so absent keys fall back to the neutral
// defaults when scoring. Unknown keys are preserved in Extra.
type DatasetStock struct {
	Ticker     string          `json:"ticker"`
	Name       string          `json:"name,omitempty"`
	Exchange   string          `json:"exchange,omitempty"`
	Sector     string          `json:"sector,omitempty"`
	Price      float64         `json:"price"`
	PrevClose  *float64        `json:"prev_close,omitempty"`
	MA20       float64         `json:"ma20,omitempty"`
	MA50       float64         `json:"ma50,omitempty"`
	MACD       float64         `json:"macd,omitempty"`
	MACDSignal float64         `json:"macd_signal,omitempty"`
	RSI        *float64        `json:"rsi,omitempty"`
	Volatility *float64        `json:"volatility,omitempty"`
	VolSpike   *float64        `json:"vol_spike,omitempty"`
	AvgVolume  float64         `json:"avg_volume,omitempty"`
	AIEnsemble json.RawMessage `json:"ai_ensemble,omitempty"`

	Score      *float64 `json:"nwf_score,omitempty"`
	Confidence *int     `json:"nwf_confidence,omitempty"`
	Liquidity  *int     `json:"liquidity_score,omitempty"`
	Robust     *float64 `json:"nwf_robust_score,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (d *Dataset) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	raw, ok := m["stocks"]
	if !ok {
		return errors.New("dataset has no stocks key")
	}

	stocks := make([]*DatasetStock, 0)
	if err := json.Unmarshal(raw, &stocks); err != nil {
		return fmt.Errorf("failed to parse stocks: %w", err)
	}
	delete(m, "stocks")

	d.Stocks = stocks
	d.Extra = m
	return nil
}

func (d *Dataset) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(d.Extra)+1)
	for k, v := range d.Extra {
		m[k] = v
	}

	raw, err := json.Marshal(d.Stocks)
	if err != nil {
		return nil, err
	}
	m["stocks"] = raw

	return json.Marshal(m)
}

func (s *DatasetStock) UnmarshalJSON(b []byte) error {
	type alias DatasetStock
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for _, k := range knownStockKeys {
		delete(m, k)
	}

	*s = DatasetStock(a)
	if len(m) > 0 {
		s.Extra = m
	}
	return nil
}

func (s *DatasetStock) MarshalJSON() ([]byte, error) {
	type alias DatasetStock
	b, err := json.Marshal((*alias)(s))
	if err != nil {
		return nil, err
	}

	if len(s.Extra) == 0 {
		return b, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		m[k] = v
	}

	return json.Marshal(m)
}

// Signals assembles scoring inputs from the stock object, substituting
// neutral defaults for absent fields.
func (s *DatasetStock) Signals() score.Signals {
	sig := score.DefaultSignals()
	sig.Price = s.Price
	sig.MA20 = s.MA20
	sig.MA50 = s.MA50
	sig.MACD = s.MACD
	sig.MACDSignal = s.MACDSignal
	sig.AvgVolume = s.AvgVolume

	if s.RSI != nil {
		sig.RSI = *s.RSI
	}
	if s.Volatility != nil {
		sig.Volatility = *s.Volatility
	}
	if s.VolSpike != nil {
		sig.VolSpike = *s.VolSpike
	}
	if conf, ok := s.aiConfidence(); ok {
		sig.AIConfidence = conf
	}

	return sig
}

// aiConfidence probes the raw ai_ensemble object for its confidence.
func (s *DatasetStock) aiConfidence() (float64, bool) {
	if len(s.AIEnsemble) == 0 {
		return 0, false
	}
	var probe struct {
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(s.AIEnsemble, &probe); err != nil || probe.Confidence == nil {
		return 0, false
	}
	return *probe.Confidence, true
}

// SetMetrics writes computed metrics onto the stock object.
func (s *DatasetStock) SetMetrics(m score.Metrics) {
	s.Score = &m.Score
	s.Confidence = &m.Confidence
	s.Liquidity = &m.Liquidity
	s.Robust = &m.Robust
}

// LoadDataset reads a pipeline JSON file.
func LoadDataset(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	ds := &Dataset{}
	if err := json.Unmarshal(b, ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	return ds, nil
}

// SaveDataset writes the dataset with 2-space indent, keeping non-ASCII
// text as-is.
func SaveDataset(path string, ds *Dataset) error {
	if ds == nil {
		return errors.New("dataset is required")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}

	return nil
}

// EnhanceDataset computes metrics for every stock in the dataset,
// stamps the envelope, and sorts stocks by robust score descending.
// Rejected stocks stay in the file without metric fields.
func EnhanceDataset(ds *Dataset) *UpdateResult {
	res := &UpdateResult{Total: len(ds.Stocks)}
	asOf := time.Now().UTC()

	for i, s := range ds.Stocks {
		sig := s.Signals()

		vr := score.Validate(score.Candidate{
			Ticker:  s.Ticker,
			Signals: sig,
		}, asOf)

		res.Warnings += vr.Warnings

		if vr.Rejected {
			res.Rejected++
			slog.Warn("stock rejected", "ticker", s.Ticker, "issues", len(vr.Issues))
			continue
		}

		s.SetMetrics(score.Compute(sig))
		res.Scored++

		if (i+1)%updateLogEvery == 0 {
			slog.Info("update progress", "processed", i+1, "total", len(ds.Stocks))
		}
	}

	ds.sortByRobust()
	ds.stamp(time.Now())

	return res
}

// sortByRobust orders stocks best first, unscored stocks last.
func (d *Dataset) sortByRobust() {
	sort.SliceStable(d.Stocks, func(i, j int) bool {
		return robustOrDefault(d.Stocks[i]) > robustOrDefault(d.Stocks[j])
	})
}

func robustOrDefault(s *DatasetStock) float64 {
	if s.Robust == nil {
		return -1
	}
	return *s.Robust
}

// stamp writes the enhancement metadata onto the envelope.
func (d *Dataset) stamp(now time.Time) {
	if d.Extra == nil {
		d.Extra = make(map[string]json.RawMessage)
	}
	d.Extra["nwf_enhanced"] = json.RawMessage("true")
	d.Extra["nwf_version"] = mustRaw(score.ModelVersion)
	d.Extra["last_nwf_update"] = mustRaw(now.Format(datasetTimeFormat))
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}

// ImportDataset loads a pipeline file into the stock and indicator
// tables. Imported stocks get today's date as their price date.
func ImportDataset(db *sql.DB, path string) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	ds, err := LoadDataset(path)
	if err != nil {
		return 0, err
	}

	today := time.Now().UTC().Format("2006-01-02")

	stocks := make([]*Stock, 0, len(ds.Stocks))
	indicators := make([]*Indicator, 0, len(ds.Stocks))

	for _, s := range ds.Stocks {
		if s.Ticker == "" {
			slog.Warn("skipping stock without ticker", "name", s.Name)
			continue
		}

		stock := &Stock{
			Ticker:    s.Ticker,
			Name:      s.Name,
			Exchange:  s.Exchange,
			Sector:    s.Sector,
			Price:     s.Price,
			PriceDate: today,
		}
		if s.PrevClose != nil {
			stock.PrevClose = *s.PrevClose
		}
		stocks = append(stocks, stock)

		sig := s.Signals()
		indicators = append(indicators, &Indicator{
			Ticker:       s.Ticker,
			MA20:         sig.MA20,
			MA50:         sig.MA50,
			RSI:          sig.RSI,
			MACD:         sig.MACD,
			MACDSignal:   sig.MACDSignal,
			Volatility:   sig.Volatility,
			VolSpike:     sig.VolSpike,
			AvgVolume:    sig.AvgVolume,
			AIConfidence: sig.AIConfidence,
		})
	}

	if err := SaveStocks(db, stocks); err != nil {
		return 0, fmt.Errorf("failed to save stocks: %w", err)
	}

	if err := SaveIndicators(db, indicators); err != nil {
		return 0, fmt.Errorf("failed to save indicators: %w", err)
	}

	if _, err := ApplySubstitutions(db); err != nil {
		return 0, fmt.Errorf("failed to apply substitutions: %w", err)
	}

	slog.Info("dataset imported", "path", path, "stocks", len(stocks))

	return len(stocks), nil
}

// ExportDataset writes the enhanced pipeline file from the tables.
func ExportDataset(db *sql.DB, path string) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	tickers, err := GetStockTickers(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get stock tickers: %w", err)
	}

	ds := &Dataset{
		Stocks: make([]*DatasetStock, 0, len(tickers)),
		Extra:  make(map[string]json.RawMessage),
	}

	for _, ticker := range tickers {
		s, err := GetStock(db, ticker)
		if err != nil {
			return 0, fmt.Errorf("failed to get stock %s: %w", ticker, err)
		}
		if s == nil {
			continue
		}

		ind, err := GetIndicators(db, ticker)
		if err != nil {
			return 0, fmt.Errorf("failed to get indicators for %s: %w", ticker, err)
		}

		m, err := GetMetrics(db, ticker)
		if err != nil {
			return 0, fmt.Errorf("failed to get metrics for %s: %w", ticker, err)
		}

		ds.Stocks = append(ds.Stocks, datasetStockFrom(s, ind, m))
	}

	ds.sortByRobust()
	ds.stamp(time.Now())

	if err := SaveDataset(path, ds); err != nil {
		return 0, err
	}

	slog.Info("dataset exported", "path", path, "stocks", len(ds.Stocks))

	return len(ds.Stocks), nil
}

func datasetStockFrom(s *Stock, ind *Indicator, m *Metric) *DatasetStock {
	ds := &DatasetStock{
		Ticker:   s.Ticker,
		Name:     s.Name,
		Exchange: s.Exchange,
		Sector:   s.Sector,
		Price:    s.Price,
	}
	if s.PrevClose != 0 {
		ds.PrevClose = &s.PrevClose
	}

	if ind != nil {
		ds.MA20 = ind.MA20
		ds.MA50 = ind.MA50
		ds.MACD = ind.MACD
		ds.MACDSignal = ind.MACDSignal
		ds.RSI = &ind.RSI
		ds.Volatility = &ind.Volatility
		ds.VolSpike = &ind.VolSpike
		ds.AvgVolume = ind.AvgVolume
		ds.AIEnsemble = mustRaw(map[string]float64{"confidence": ind.AIConfidence})
	}

	if m != nil {
		ds.Score = &m.Score
		ds.Confidence = &m.Confidence
		ds.Liquidity = &m.Liquidity
		ds.Robust = &m.Robust
	}

	return ds
}
