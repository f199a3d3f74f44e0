package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileSnapshot is the on-disk JSON schema for FileSource:
//
//	{
//	  "traders":    [{"trader_id": "...", "name": "...", "mpid": "...", "crd": "...", "account_type": "..."}],
//	  "strategies": [{"code": "...", "name": "...", "type": "..."}],
//	  "securities": [{"symbol": "...", "cusip": "...", "sedol": "...", "isin": "...", "name": "..."}],
//	  "mics":       {"NASDAQ": "XNAS", "NYSE": "XNYS"}
//	}
type fileSnapshot struct {
	Traders []struct {
		TraderID    string `json:"trader_id"`
		Name        string `json:"name"`
		MPID        string `json:"mpid"`
		CRD         string `json:"crd"`
		AccountType string `json:"account_type"`
	} `json:"traders"`
	Strategies []struct {
		Code string `json:"code"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"strategies"`
	Securities []struct {
		Symbol string `json:"symbol"`
		CUSIP  string `json:"cusip"`
		SEDOL  string `json:"sedol"`
		ISIN   string `json:"isin"`
		Name   string `json:"name"`
	} `json:"securities"`
	MICs map[string]string `json:"mics"`
}

// FileSource loads a Snapshot from a single JSON file on disk. It exists
// for local development and tests; production deployments point Source at
// the real reference-data store instead.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("refdata: read %s: %w", f.Path, err)
	}

	var doc fileSnapshot
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("refdata: parse %s: %w", f.Path, err)
	}

	snap := &Snapshot{
		Traders:    make(map[string]Trader, len(doc.Traders)),
		Strategies: make(map[string]Strategy, len(doc.Strategies)),
		Securities: make(map[string]Security, len(doc.Securities)),
		MICs:       doc.MICs,
		AsOf:       time.Now().UTC(),
	}
	for _, t := range doc.Traders {
		snap.Traders[t.TraderID] = Trader{
			TraderID: t.TraderID, Name: t.Name, MPID: t.MPID, CRD: t.CRD, AccountType: t.AccountType,
		}
	}
	for _, s := range doc.Strategies {
		snap.Strategies[s.Code] = Strategy{Code: s.Code, Name: s.Name, Type: s.Type}
	}
	for _, s := range doc.Securities {
		snap.Securities[s.Symbol] = Security{Symbol: s.Symbol, CUSIP: s.CUSIP, SEDOL: s.SEDOL, ISIN: s.ISIN, Name: s.Name}
	}
	if snap.MICs == nil {
		snap.MICs = map[string]string{}
	}
	return snap, nil
}
