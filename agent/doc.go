// Package agent implements the reasoning loop: the top-level controller that
// turns a user utterance into zero or more capability invocations and a final
// natural-language reply.
//
// Per turn the loop consults the memory store for relevant context, assembles
// a system prompt with the capability catalog, alternates between asking the
// completion backend what to do and executing requested capability calls
// through the gateway, and finally writes anything durably worth remembering
// back into the memory store. Capability calls within one iteration run
// sequentially so each result can influence audit ordering and the model's
// next observation.
package agent
