// Package model defines the shared domain types: ticks, candles, daily
// levels, strategy signals, orders, and trade records.
package model
