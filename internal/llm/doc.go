/*
Package llm relays chat prompts from the editor panel to a single
configurable LLM completion endpoint.

# Architecture Overview

The package follows a layered layout:

1. HTTP Handlers (handlers.go)
  - Expose the /api/config and /api/chat endpoints consumed by the panel
  - Decode JSON bodies, map classified errors to status codes
  - Stamp every response with a timestamp

2. Service Layer (service.go)
  - Validates completion requests before any I/O
  - Merges request fields over the stored defaults
  - Performs one bounded outbound call and classifies the outcome

3. Configuration Store (config.go, store.go)
  - Persists endpoint URL, token, model and sampling parameters to a
    per-user JSON file
  - Validates every mutation; rejected updates leave state untouched
  - Provides masked views and readiness status

4. Response Decoding (response.go)
  - Extracts text from choices[].text, falling back to
    choices[].message.content
  - Extracts a readable message from upstream error bodies

5. Token Inspection (token.go)
  - Reads the exp claim of JWT bearer tokens for display and warnings

# Integration Flow

 1. The panel posts a prompt to /api/chat/completion or /api/chat/simple
 2. The handler validates the request and reports every violated rule
 3. The service merges the request with the stored configuration and fails
    fast when the endpoint URL or token is missing
 4. The prompt is POSTed upstream as {model, prompt, max_tokens, temperature}
    with a bearer token and the configured timeout
 5. The reply is normalised to {id, model, text, totalTokens}

# Error Handling

Failures are classified so a caller can decide what to do next:

  - ValidationError: fix the input
  - ConfigurationError: configure the API URL and token
  - UpstreamError: the endpoint answered with an error status
  - NetworkError: no response; check the URL or network
  - NoResponseError: the response carried no usable choice
  - RequestError: anything else

Nothing is retried automatically and tokens never appear in messages or logs.
*/
package llm
