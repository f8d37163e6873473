// onepay is a CLI for wallet sign-in and x402 payment authorization
// against 1Pay.ing.
//
// Usage:
//
//	onepay signin --solana-keypair <file>   Sign in with local keys
//	onepay signin --deeplink                Sign in through Phantom
//	onepay pay <payment-link>               Authorize a payment
//	onepay status                           Show the current session
//	onepay logout                           Drop the current session
package main

import "github.com/ldclabs/1paying/internal/commands"

func main() {
	commands.Execute()
}
