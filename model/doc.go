// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with completion backends inside aide.
//
// Core goals:
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//     so the reasoning loop never branches on the provider
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so the agent layer remains decoupled from vendor SDKs.
package model
