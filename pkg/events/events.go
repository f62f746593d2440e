// Package events decodes balance-change entries from the Redis event stream.
//
// An entry carries either flat fields
//
//	kind=holding owner=<address> asset=<id> timestamp=<unix s> delta=<signed int> height=<n> index=<n>
//
// or a single "data" field holding the same keys as a JSON object.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/redis"
)

// ErrMalformedEvent is returned for entries that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed balance event")

// Kind is the type of position an account tracks.
type Kind string

const (
	KindHolding Kind = "holding"
	KindStaking Kind = "staking"
)

func (k Kind) Valid() bool {
	return k == KindHolding || k == KindStaking
}

// Subject identifies what an account tracks: a holding of an asset (a pool
// or token store) or a staking position, owned by an address.
type Subject struct {
	Kind  Kind   `json:"kind"`
	Asset string `json:"asset"`
	Owner string `json:"owner"`
}

// AccountID is the ledger key of the subject, "<kind>:<asset>:<owner>".
func (s Subject) AccountID() string {
	return string(s.Kind) + ":" + s.Asset + ":" + s.Owner
}

func (s Subject) validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, s.Kind)
	}
	if s.Asset == "" || strings.Contains(s.Asset, ":") {
		return fmt.Errorf("%w: invalid asset %q", ErrMalformedEvent, s.Asset)
	}
	if s.Owner == "" || strings.Contains(s.Owner, ":") {
		return fmt.Errorf("%w: invalid owner %q", ErrMalformedEvent, s.Owner)
	}
	return nil
}

// ParseAccountID splits an account id back into its subject.
func ParseAccountID(id string) (Subject, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return Subject{}, fmt.Errorf("%w: account id %q", ErrMalformedEvent, id)
	}
	s := Subject{Kind: Kind(parts[0]), Asset: parts[1], Owner: parts[2]}
	if err := s.validate(); err != nil {
		return Subject{}, err
	}
	return s, nil
}

// field accepts a JSON string or number. Producers are not consistent about
// quoting large integers.
type field string

func (f *field) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = field(n)
	return nil
}

type payload struct {
	Kind      Kind   `json:"kind"`
	Owner     string `json:"owner"`
	Asset     field  `json:"asset"`
	Timestamp field  `json:"timestamp"`
	Delta     field  `json:"delta"`
	Height    field  `json:"height"`
	Index     field  `json:"index"`
}

// Decode turns a stream entry into a balance event and its subject.
func Decode(msg redis.Message) (ledger.BalanceEvent, Subject, error) {
	var p payload
	if data := msg.GetData(); data != nil {
		if err := json.Unmarshal(data, &p); err != nil {
			return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, msg.ID, err)
		}
	} else {
		get := func(key string) string {
			v, _ := msg.GetString(key)
			return v
		}
		p = payload{
			Kind:      Kind(get("kind")),
			Owner:     get("owner"),
			Asset:     field(get("asset")),
			Timestamp: field(get("timestamp")),
			Delta:     field(get("delta")),
			Height:    field(get("height")),
			Index:     field(get("index")),
		}
	}

	subject := Subject{Kind: p.Kind, Asset: string(p.Asset), Owner: p.Owner}
	if err := subject.validate(); err != nil {
		return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%s: %w", msg.ID, err)
	}

	ts, err := strconv.ParseInt(string(p.Timestamp), 10, 64)
	if err != nil || ts < 0 {
		return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%w: %s: timestamp %q", ErrMalformedEvent, msg.ID, p.Timestamp)
	}
	delta, err := strconv.ParseInt(string(p.Delta), 10, 64)
	if err != nil {
		return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%w: %s: delta %q", ErrMalformedEvent, msg.ID, p.Delta)
	}

	var key ledger.OrderingKey
	if p.Height != "" {
		if key.Height, err = strconv.ParseUint(string(p.Height), 10, 64); err != nil {
			return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%w: %s: height %q", ErrMalformedEvent, msg.ID, p.Height)
		}
	}
	if p.Index != "" {
		idx, err := strconv.ParseUint(string(p.Index), 10, 32)
		if err != nil {
			return ledger.BalanceEvent{}, Subject{}, fmt.Errorf("%w: %s: index %q", ErrMalformedEvent, msg.ID, p.Index)
		}
		key.Index = uint32(idx)
	}

	return ledger.BalanceEvent{
		AccountID:   subject.AccountID(),
		Timestamp:   ts,
		Delta:       delta,
		OrderingKey: key,
	}, subject, nil
}

// Fields renders an event as flat stream fields, the inverse of Decode.
func Fields(subject Subject, ev ledger.BalanceEvent) map[string]interface{} {
	return map[string]interface{}{
		"kind":      string(subject.Kind),
		"owner":     subject.Owner,
		"asset":     subject.Asset,
		"timestamp": strconv.FormatInt(ev.Timestamp, 10),
		"delta":     strconv.FormatInt(ev.Delta, 10),
		"height":    strconv.FormatUint(ev.OrderingKey.Height, 10),
		"index":     strconv.FormatUint(uint64(ev.OrderingKey.Index), 10),
	}
}
