package ingestion

import (
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// priceUpdateJSON is the wire form of a price quote. Price is a decimal
// string in USD per whole unit and may carry up to 8 decimals.
type priceUpdateJSON struct {
	Feed        string `json:"feed"`
	Price       string `json:"price"`
	Round       uint64 `json:"round"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParsePriceUpdate converts a price message into an oracle quote. The feed
// defaults to the subject suffix after synth.prices. when the payload omits
// it; when both are present they must agree. A missing timestamp or round
// is left for the book to fill.
func ParsePriceUpdate(subject string, data []byte) (oracle.Quote, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return oracle.Quote{}, fmt.Errorf("parse price update: %w", err)
	}

	fromSubject := strings.TrimPrefix(subject, PriceSubjectPrefix)
	if fromSubject == subject {
		fromSubject = ""
	}
	feed := j.Feed
	switch {
	case feed == "" && fromSubject == "":
		return oracle.Quote{}, fmt.Errorf("parse price update: missing feed")
	case feed == "":
		feed = fromSubject
	case fromSubject != "" && fromSubject != feed:
		return oracle.Quote{}, fmt.Errorf("parse price update: feed %q does not match subject %q", feed, subject)
	}

	if j.Price == "" {
		return oracle.Quote{}, fmt.Errorf("parse price update: missing price")
	}
	price, err := fpmath.ParseUnits(j.Price, fpmath.FeedConfig)
	if err != nil {
		return oracle.Quote{}, fmt.Errorf("parse price: %w", err)
	}
	if price.IsZero() {
		return oracle.Quote{}, fmt.Errorf("parse price update: zero price for %s", feed)
	}

	at := time.Now().UTC()
	if j.TimestampUs != 0 {
		at = time.UnixMicro(j.TimestampUs).UTC()
	}

	return oracle.Quote{
		Feed:      feed,
		Price:     price,
		Round:     j.Round,
		UpdatedAt: at,
	}, nil
}
