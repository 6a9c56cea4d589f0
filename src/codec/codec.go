package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"market-broker/src/models"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrMissingSubject = errors.New("message has no subject")
	ErrWildcardName   = errors.New("subject name is the reserved wildcard")
)

// Short keys used by publishers, with the long outbound names accepted as aliases.
const (
	KeySubject   = "sn"
	KeyInterval  = "si"
	KeyTime      = "t"
	KeyAvgPrice  = "ap"
	KeyOpenPrice = "op"
	KeyMinPrice  = "mn"
	KeyMaxPrice  = "mx"
	KeyVolume    = "vm"
	KeyNumTrades = "nt"

	KeyStock = "stock"
)

var aliases = map[string]string{
	"name":          KeySubject,
	"interval":      KeyInterval,
	"time":          KeyTime,
	"avg_price":     KeyAvgPrice,
	"open_price":    KeyOpenPrice,
	"min_price":     KeyMinPrice,
	"max_price":     KeyMaxPrice,
	"volume_moved":  KeyVolume,
	"num_of_trades": KeyNumTrades,
}

// -----------------------------------------------------------------------------

// Decode returns every complete pair of msg. Later duplicates win.
// A discarded trailing fragment is not an error.
func Decode(msg string) map[string]string {
	fields := make(map[string]string)
	t := NewTokenizer(msg)
	for {
		f, ok := t.Next()
		if !ok {
			break
		}
		fields[f.Key] = f.Value
	}
	return fields
}

// -----------------------------------------------------------------------------

// DecodeUpdate parses an update message into a record. Unknown keys are
// ignored; a missing subject or an unparsable number is an error.
func DecodeUpdate(msg string) (*models.MUpdateRecord, error) {
	rec := &models.MUpdateRecord{}

	for k, v := range Decode(msg) {
		if canonical, ok := aliases[k]; ok {
			k = canonical
		}
		if err := setField(rec, k, v); err != nil {
			return nil, fmt.Errorf("%w: field %s=%q: %v", ErrMalformed, k, v, err)
		}
	}

	if rec.Name == "" {
		return nil, ErrMissingSubject
	}
	if rec.Name == "*" {
		return nil, ErrWildcardName
	}
	return rec, nil
}

// -----------------------------------------------------------------------------

func setField(rec *models.MUpdateRecord, key, value string) error {
	var err error
	switch key {
	case KeySubject:
		rec.Name = value
	case KeyInterval:
		var n int64
		n, err = strconv.ParseInt(value, 10, 32)
		if err == nil && n < 0 {
			err = errors.New("negative interval")
		}
		rec.Interval = int(n)
	case KeyTime:
		rec.Timestamp, err = strconv.ParseInt(value, 10, 64)
	case KeyAvgPrice:
		rec.AvgPrice, err = decimal.NewFromString(value)
	case KeyOpenPrice:
		rec.OpenPrice, err = decimal.NewFromString(value)
	case KeyMinPrice:
		rec.MinPrice, err = decimal.NewFromString(value)
	case KeyMaxPrice:
		rec.MaxPrice, err = decimal.NewFromString(value)
	case KeyVolume:
		rec.VolumeMoved, err = strconv.ParseInt(value, 10, 64)
	case KeyNumTrades:
		rec.NumTrades, err = strconv.ParseInt(value, 10, 64)
	}
	return err
}

// -----------------------------------------------------------------------------

// DecodeSubscribe parses a `{"stock": "<name>"}` request.
func DecodeSubscribe(msg string) (models.MSubscribeRequest, error) {
	stock, ok := Decode(msg)[KeyStock]
	if !ok {
		return models.MSubscribeRequest{}, fmt.Errorf("%w: no %q field", ErrMalformed, KeyStock)
	}
	return models.MSubscribeRequest{Stock: stock}, nil
}

// -----------------------------------------------------------------------------

// EncodeUpdate renders the outbound form pushed to subscribers, always in the
// order name, avg_price, min_price, max_price, volume_moved, num_of_trades, time.
func EncodeUpdate(rec *models.MUpdateRecord) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(`{"name":"`)
	b.WriteString(rec.Name)
	b.WriteString(`","avg_price":`)
	b.WriteString(rec.AvgPrice.String())
	b.WriteString(`,"min_price":`)
	b.WriteString(rec.MinPrice.String())
	b.WriteString(`,"max_price":`)
	b.WriteString(rec.MaxPrice.String())
	b.WriteString(`,"volume_moved":`)
	b.WriteString(strconv.FormatInt(rec.VolumeMoved, 10))
	b.WriteString(`,"num_of_trades":`)
	b.WriteString(strconv.FormatInt(rec.NumTrades, 10))
	b.WriteString(`,"time":`)
	b.WriteString(strconv.FormatInt(rec.Timestamp, 10))
	b.WriteString(`}`)
	return b.String()
}

// -----------------------------------------------------------------------------

// EncodePublish renders the short-key form publishers send to the ingestion endpoint.
func EncodePublish(rec *models.MUpdateRecord) string {
	return fmt.Sprintf(`{"sn":"%s","si":%d,"t":%d,"ap":%s,"op":%s,"mn":%s,"mx":%s,"vm":%d,"nt":%d}`,
		rec.Name, rec.Interval, rec.Timestamp,
		rec.AvgPrice.String(), rec.OpenPrice.String(), rec.MinPrice.String(), rec.MaxPrice.String(),
		rec.VolumeMoved, rec.NumTrades)
}
