/*
Package runtime implements the webview side of the codeshot channel.

# Architecture Overview

A Bridge sits on one end of a one-way Watermill channel shared by the whole
process. The webview posts envelopes on the outbound topic and the host
service answers on the inbound topic. Request layers a request/response
exchange over that channel by resending the request on an interval until a
response of the same type arrives or the timeout fires.

# Package Structure

## Bridge (bridge.go)

Bridge wires the channel adapter, listener registry, request orchestrator and
state store together. Inbound messages first go to pending requests; a message
no request claims is dispatched to the listeners registered with On.

## Groups (groups.go)

Groups hands out reference counted Scopes over one bridge per group id. The
bridge closes when the last scope of its group closes.

## Global (global.go)

Global returns the process-wide bridge, created on first use.

## Typed helpers (typed.go)

RequestJSON and OnJSON decode payloads into Go types.

# Subpackages

  - channel: process-wide transport handle and the adapter over it
  - envelope: {type, data} wire codec
  - listeners: per-type success and failure callbacks
  - orchestrator: resend-until-response requests with correlation ids
  - state, statestore: typed persisted state over memory, file, SQLite or
    PostgreSQL
  - host: the extension side, a Watermill router answering webview commands
  - config, errors, logging, metadata, ids, jsoncodec: shared plumbing

# Example

	bridge, err := runtime.NewBridge[PanelState](ctx, &config.Config{}, logger, runtime.BridgeDependencies{})
	if err != nil {
		return err
	}
	defer bridge.Close()

	themes, err := runtime.RequestJSON[[]string](ctx, bridge, "getThemes", nil)
*/
package runtime
