// Package lark implements the Lark (Feishu) channel module. It receives
// message events over the SDK's long-lived websocket, normalizes them into
// the platform-agnostic message contract, and delivers replies as text
// messages or live-updating interactive cards.
package lark
