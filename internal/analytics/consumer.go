package analytics

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/kafka"
)

// HandleEvent returns a kafka.MessageHandler that folds published
// QueryEvents into agg. It lets one analytics process aggregate the events of
// every query service replica.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}
