// Package session keeps short-lived per-conversation values for Telegram bots.
// It is domain-agnostic: the value type and the key (usually user+chat) are
// chosen by the bot. Work on one key is serialized; different keys never wait
// on each other beyond a map lookup.
package session
