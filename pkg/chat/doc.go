// Package chat is the gateway's request pipeline: detect the client's
// dialect from the body shape, resolve the model through the alias table,
// translate and execute against the fallback chain, and render the winning
// response back in the client's dialect and streaming mode.
//
// The pipeline is dialect-symmetric: a client speaking the chat-completions
// dialect and one speaking the responses dialect go through the same path and
// differ only in the registry edges and renderer chosen.
package chat
