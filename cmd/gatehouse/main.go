// Gatehouse is a local AI gateway that speaks the OpenAI chat-completions
// and responses dialects on one side and multiple upstream providers on the
// other, with model aliasing, account rotation, and fallback.
//
// Usage:
//
//	# Start the gateway with default configuration
//	gatehouse run
//
//	# Start with a custom configuration file
//	gatehouse run --config /etc/gatehouse/gatehouse.yaml
//
//	# Validate a configuration file
//	gatehouse validate --config gatehouse.yaml
//
//	# Show version information
//	gatehouse version
package main

func main() {
	Execute()
}
