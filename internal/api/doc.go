// Package api provides the market data REST client.
//
// The crawler reads one endpoint, CoinGecko's /coins/markets:
//   - Production: https://api.coingecko.com/api/v3/coins/markets
//   - Demo keys authenticate with the x-cg-demo-api-key header
//
// Responses are decoded into RawSnapshot, a boundary type whose fields are
// all optional. Nothing outside the normalizer should read it.
package api
