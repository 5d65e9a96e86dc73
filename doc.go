// Package codeshot is the messaging layer between a code screenshot webview
// and its privileged host. The two sides only share a one-way channel with no
// acknowledgement and no request ids; codeshot frames messages into typed
// envelopes, routes inbound envelopes to per-type listeners and turns the
// channel into request/response calls by resending a request until the host
// answers with the same type or a timeout fires.
//
// The channel is a Watermill publisher/subscriber pair on two topics. Config
// selects the backend (Go channels, NATS, Kafka, RabbitMQ, HTTP, AWS SNS/SQS
// or a file) and every built-in backend is registered when this package is
// imported.
//
// # Webview side
//
// A Bridge owns one inbound subscription, one listener registry and one
// persisted state mirror:
//
//	bridge, err := codeshot.NewBridge[PanelState](ctx, &codeshot.Config{}, logger, codeshot.BridgeDependencies{})
//	dispose, _ := bridge.On(codeshot.TypeUpdateCode, func(data json.RawMessage) { ... }, nil)
//	defer dispose()
//	ack, err := bridge.Request(ctx, codeshot.TypeCopyImage, payload, codeshot.WithTimeout(5*time.Second))
//
// When the channel cannot be acquired the bridge runs disabled: Post does
// nothing and Request fails at once with ErrChannelUnavailable.
//
// NewGroups shares one Bridge between the consumers of a group and tears it
// down with the last Scope. Global returns a process-wide Bridge that is never
// closed.
//
// # Host side
//
// NewHostService runs a Watermill router over the webview topic with the
// ready, alert, showMessage, copyImage and downloadImage commands built in.
// HandleRequest adds request handlers whose results go back under the request
// type with the correlation id echoed, so a resent request is answered from
// the reply cache instead of running twice.
//
// # Persisted state
//
// Bridge.State and Bridge.SetState mirror one JSON value. Config.StateBackend
// picks where it lives: memory, a JSON file, SQLite or PostgreSQL.
package codeshot
