// Package marketmeta decodes upstream market-metadata payloads into the
// canonical model.MarketMeta.
//
// Upstream sources disagree on field names and encodings for the same
// concepts. Decode detects which shape a payload has and runs the decoder
// for that shape, so nothing past this package ever sees the variation.
//
// Accepted shapes:
//   - gamma:     closed, outcomes/outcomePrices as arrays or JSON-encoded strings
//   - clob:      closed, tokens[{outcome, price, winner}]
//   - dome:      status, winning_side ({label,id} or string), side_a/side_b
//   - canonical: closed/resolved, resolved_outcome/winning_label,
//     outcomes/outcome_labels, outcome_prices
package marketmeta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atmx/pnl-engine/internal/model"
)

var (
	ErrMalformed       = errors.New("marketmeta: malformed payload")
	ErrMissingMarketID = errors.New("marketmeta: missing market id")
)

// Shape identifies an upstream payload layout.
type Shape string

const (
	ShapeCanonical Shape = "canonical"
	ShapeGamma     Shape = "gamma"
	ShapeCLOB      Shape = "clob"
	ShapeDome      Shape = "dome"
)

// envelope holds every field any accepted shape may carry.
type envelope struct {
	ConditionID      string          `json:"condition_id"`
	ConditionIDCamel string          `json:"conditionId"`
	MarketID         string          `json:"market_id"`
	ID               json.RawMessage `json:"id"`

	Closed         *bool  `json:"closed"`
	Resolved       *bool  `json:"resolved"`
	MarketResolved *bool  `json:"market_resolved"`
	Status         string `json:"status"`
	UMAResolution  string `json:"umaResolutionStatus"`

	ResolvedOutcome *string         `json:"resolved_outcome"`
	WinningLabel    *string         `json:"winning_label"`
	WinningSide     json.RawMessage `json:"winning_side"`

	Outcomes           json.RawMessage `json:"outcomes"`
	OutcomeLabels      json.RawMessage `json:"outcome_labels"`
	OutcomePrices      json.RawMessage `json:"outcome_prices"`
	OutcomePricesCamel json.RawMessage `json:"outcomePrices"`

	Tokens []clobToken `json:"tokens"`
	SideA  *domeSide   `json:"side_a"`
	SideB  *domeSide   `json:"side_b"`
}

type clobToken struct {
	Outcome string          `json:"outcome"`
	Price   json.RawMessage `json:"price"`
	Winner  bool            `json:"winner"`
}

type domeSide struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Price json.RawMessage `json:"price"`
}

// Decode detects the payload's shape and normalizes it.
func Decode(raw []byte) (model.MarketMeta, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.MarketMeta{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.decode()
}

// DecodeMany decodes a JSON array of metadata payloads, each in any
// accepted shape.
func DecodeMany(raw []byte) ([]model.MarketMeta, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	metas := make([]model.MarketMeta, 0, len(items))
	for i, item := range items {
		m, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// Detect reports which shape Decode would use for raw.
func Detect(raw []byte) (Shape, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.shape(), nil
}

func (e *envelope) shape() Shape {
	switch {
	case len(e.Tokens) > 0:
		return ShapeCLOB
	case present(e.WinningSide) || e.SideA != nil || e.SideB != nil:
		return ShapeDome
	case present(e.OutcomePricesCamel) || isJSONString(e.Outcomes):
		return ShapeGamma
	default:
		return ShapeCanonical
	}
}

func (e *envelope) decode() (model.MarketMeta, error) {
	id := e.marketID()
	if id.IsZero() {
		return model.MarketMeta{}, ErrMissingMarketID
	}

	meta := model.MarketMeta{MarketID: id}
	var err error
	switch e.shape() {
	case ShapeCLOB:
		err = e.decodeCLOB(&meta)
	case ShapeDome:
		err = e.decodeDome(&meta)
	case ShapeGamma:
		err = e.decodeGamma(&meta)
	default:
		err = e.decodeCanonical(&meta)
	}
	if err != nil {
		return model.MarketMeta{}, err
	}
	return meta, nil
}

func (e *envelope) marketID() model.MarketID {
	for _, candidate := range []string{e.ConditionID, e.ConditionIDCamel, e.MarketID, rawScalar(e.ID)} {
		if id := model.NewMarketID(candidate); !id.IsZero() {
			return id
		}
	}
	return ""
}

func (e *envelope) decodeGamma(meta *model.MarketMeta) error {
	meta.Closed = isTrue(e.Closed) || strings.EqualFold(e.UMAResolution, "resolved")

	labels, err := stringList(e.Outcomes)
	if err != nil {
		return fmt.Errorf("%w: outcomes: %v", ErrMalformed, err)
	}
	pricesRaw := e.OutcomePricesCamel
	if !present(pricesRaw) {
		pricesRaw = e.OutcomePrices
	}
	prices, err := priceList(pricesRaw)
	if err != nil {
		return fmt.Errorf("%w: outcomePrices: %v", ErrMalformed, err)
	}
	meta.Outcomes = outcomes(labels)
	meta.OutcomePrices = prices
	return nil
}

func (e *envelope) decodeCLOB(meta *model.MarketMeta) error {
	meta.Closed = isTrue(e.Closed)
	for _, tok := range e.Tokens {
		meta.Outcomes = append(meta.Outcomes, model.NewOutcome(tok.Outcome))
		meta.OutcomePrices = append(meta.OutcomePrices, scalarPrice(tok.Price))
		if tok.Winner {
			meta.WinningOutcome = model.NewOutcome(tok.Outcome)
		}
	}
	return nil
}

func (e *envelope) decodeDome(meta *model.MarketMeta) error {
	meta.Closed = isTrue(e.Closed) || closedStatus(e.Status)

	if present(e.WinningSide) {
		label, err := winningLabel(e.WinningSide)
		if err != nil {
			return fmt.Errorf("%w: winning_side: %v", ErrMalformed, err)
		}
		meta.WinningOutcome = model.NewOutcome(label)
	}
	if meta.WinningOutcome.IsZero() && e.WinningLabel != nil {
		meta.WinningOutcome = model.NewOutcome(*e.WinningLabel)
	}

	// Side prices are optional; only publish arrays when every side has one.
	sides := []*domeSide{e.SideA, e.SideB}
	complete := true
	for _, s := range sides {
		if s == nil {
			continue
		}
		meta.Outcomes = append(meta.Outcomes, model.NewOutcome(s.Label))
		if present(s.Price) {
			meta.OutcomePrices = append(meta.OutcomePrices, scalarPrice(s.Price))
		} else {
			complete = false
		}
	}
	if !complete {
		meta.OutcomePrices = nil
	}
	return nil
}

func (e *envelope) decodeCanonical(meta *model.MarketMeta) error {
	meta.Closed = isTrue(e.Closed) || isTrue(e.Resolved) || isTrue(e.MarketResolved) || closedStatus(e.Status)

	switch {
	case e.ResolvedOutcome != nil:
		meta.WinningOutcome = model.NewOutcome(*e.ResolvedOutcome)
	case e.WinningLabel != nil:
		meta.WinningOutcome = model.NewOutcome(*e.WinningLabel)
	}

	labelsRaw := e.Outcomes
	if !present(labelsRaw) {
		labelsRaw = e.OutcomeLabels
	}
	labels, err := stringList(labelsRaw)
	if err != nil {
		return fmt.Errorf("%w: outcomes: %v", ErrMalformed, err)
	}
	prices, err := priceList(e.OutcomePrices)
	if err != nil {
		return fmt.Errorf("%w: outcome_prices: %v", ErrMalformed, err)
	}
	meta.Outcomes = outcomes(labels)
	meta.OutcomePrices = prices
	return nil
}

// --- field helpers ---

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func isJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

func isTrue(b *bool) bool { return b != nil && *b }

func closedStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "closed", "resolved", "settled", "finalized":
		return true
	}
	return false
}

// unwrap turns a JSON-encoded string ("[\"Yes\",\"No\"]") into the array it
// encodes. Anything else is returned unchanged.
func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	if !isJSONString(raw) {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	return json.RawMessage(inner), nil
}

func stringList(raw json.RawMessage) ([]string, error) {
	if !present(raw) {
		return nil, nil
	}
	raw, err := unwrap(raw)
	if err != nil || !present(raw) {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// priceList accepts an array of numbers or numeric strings, or a JSON string
// encoding such an array. Elements that do not parse become NaN so the
// engine's finiteness rule rejects them individually.
func priceList(raw json.RawMessage) ([]float64, error) {
	if !present(raw) {
		return nil, nil
	}
	raw, err := unwrap(raw)
	if err != nil || !present(raw) {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = scalarPrice(item)
	}
	return out, nil
}

func scalarPrice(raw json.RawMessage) float64 {
	s := rawScalar(raw)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// rawScalar returns a JSON string's contents or a bare number's text.
func rawScalar(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	if isJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func winningLabel(raw json.RawMessage) (string, error) {
	if isJSONString(raw) {
		return rawScalar(raw), nil
	}
	var side domeSide
	if err := json.Unmarshal(raw, &side); err != nil {
		return "", err
	}
	return side.Label, nil
}

func outcomes(labels []string) []model.Outcome {
	if len(labels) == 0 {
		return nil
	}
	out := make([]model.Outcome, len(labels))
	for i, l := range labels {
		out[i] = model.NewOutcome(l)
	}
	return out
}
