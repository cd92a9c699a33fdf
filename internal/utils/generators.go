package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateReceipt builds the provider receipt for a booking order, e.g. "bk_42_1a2b3c4d".
// Razorpay caps receipts at 40 characters.
func GenerateReceipt(bookingID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("bk_%d_%s", bookingID, suffix)
}

// GenerateRequestID returns an id used to correlate a request across log lines.
func GenerateRequestID() string {
	return uuid.NewString()
}
