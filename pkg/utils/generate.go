package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ==================== UUID ====================

func GenerateUUID() uuid.UUID {
	return uuid.New()
}

func ParseUUID(uuidStr string) (uuid.UUID, error) {
	return uuid.Parse(uuidStr)
}

// ==================== ORDER ID ====================

// GenerateMerchantOrderID builds the reference sent to the gateway for one
// payment attempt. Format: STAY-YYYYMMDD-HHMMSS-<first 8 of payment id>.
// The gateway rejects reused references, so every attempt gets its own.
func GenerateMerchantOrderID(paymentID uuid.UUID, now time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(paymentID.String(), "-", "")[:8])
	return fmt.Sprintf("STAY-%s-%s-%s", now.UTC().Format("20060102"), now.UTC().Format("150405"), short)
}

// ==================== PARSING ====================

// ParseInt converts string to int with default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	if result < 1 {
		return defaultValue
	}

	return result
}
