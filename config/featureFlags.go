package config

import (
	"os"
	"strings"
)

// SeparateReceivedStatus splits "goods received" from "payment settled":
// receipt processing moves a purchase invoice to Received instead of Paid,
// and recording full payment settles it to Paid.
//
// Set via env:
// - SEPARATE_RECEIVED_STATUS=true
func SeparateReceivedStatus() bool {
	return boolFromEnv("SEPARATE_RECEIVED_STATUS")
}

// AllowOversell permits quantity_on_hand to go negative on sales delivery
// and on negative stock adjustments. Default is to reject the mutation.
//
// Set via env:
// - ALLOW_OVERSELL=true
func AllowOversell() bool {
	return boolFromEnv("ALLOW_OVERSELL")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
