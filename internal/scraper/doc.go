// Package scraper resolves live process parameters for scenarios whose
// config names a source instead of static params.
//
// A source is any HTTP endpoint serving the Prometheus text exposition format
// with four gauges:
//
//	partyield_target_dimension   nx
//	partyield_std_deviation      o
//	partyield_tolerance_lower    ei
//	partyield_tolerance_upper    es
//
// A gauging station or SPC system publishes these and the evaluator turns
// them into a yield on every cycle. Authentication (mTLS, API key, bearer,
// basic) is handled by authRoundTripper in client.go.
package scraper
