package kv

var (
	EscapeNATSKey   = escapeNATSKey
	UnescapeNATSKey = unescapeNATSKey
	SealTTL         = sealTTL
	OpenTTL         = openTTL
)
