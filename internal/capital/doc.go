// Package capital provides the Capital.com REST API client: session
// login/renewal, account lookups, market search, historical prices, and
// working-order placement.
package capital
